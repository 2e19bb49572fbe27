package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/api"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/batch"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/config"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/gateway"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/ledger"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/metrics"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/rewards"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		if err := store.MigrateUp(cfg.DatabaseURL); err != nil {
			slog.Error("migration failed", "err", err)
			os.Exit(1)
		}

		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Gateways ---
	oracle := gateway.NewSolanaOracle(cfg.SolanaRPCURL, cfg.GatewayTimeout)
	swapper := gateway.NewSwapperClient(cfg.SwapperURL, cfg.GatewayTimeout)
	prices := gateway.NewJupiterPriceClient(cfg.PriceAPIURL, cfg.GatewayTimeout)

	// --- Ledger, rewards, orchestrator ---
	acc := rewards.NewAccumulator(st, cfg.ActivationThreshold)
	recorder := ledger.NewRecorder(st, acc, cfg.DustThreshold)
	orchestrator := batch.NewOrchestrator(oracle, swapper, prices, recorder, batch.Config{
		FanOut:      cfg.FanOut,
		FeeBuffer:   cfg.FeeBuffer,
		SlippageBps: cfg.SlippageBps,
	})

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- HTTP service ---
	svc := api.NewService(st, orchestrator, acc, oracle, prices, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"sensei-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time fill events.
		r.Get("/ws", wsHub.HandleWS)

		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second, // batches can outlive single gateway timeouts
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sensei-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down sensei-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("sensei-engine stopped")
}
