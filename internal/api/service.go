// Package api provides the HTTP handlers for batch trade execution,
// portfolio/trade-history queries, the points leaderboard, and referral
// stats.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/batch"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/gateway"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/rewards"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/store"
)

// Service handles the engine's HTTP surface.
type Service struct {
	store        store.Store
	orchestrator *batch.Orchestrator
	rewards      *rewards.Accumulator
	oracle       gateway.BalanceOracle
	prices       gateway.PriceSource
	wsHub        *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates the HTTP service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(
	st store.Store,
	orchestrator *batch.Orchestrator,
	acc *rewards.Accumulator,
	oracle gateway.BalanceOracle,
	prices gateway.PriceSource,
	hub *WSHub,
) *Service {
	return &Service{
		store:        st,
		orchestrator: orchestrator,
		rewards:      acc,
		oracle:       oracle,
		prices:       prices,
		wsHub:        hub,
	}
}

// Routes mounts all handlers on r under /api/v1.
func (s *Service) Routes(r chi.Router) {
	r.Post("/users", s.RegisterUser)
	r.Post("/users/{userID}/wallets", s.ImportWallet)
	r.Get("/users/{userID}/trades", s.GetTrades)
	r.Get("/users/{userID}/referrals", s.GetReferrals)
	r.Post("/trades/batch", s.ExecuteBatchTrade)
	r.Get("/portfolio/{userID}", s.GetPortfolio)
	r.Get("/leaderboard", s.GetLeaderboard)
}

// --- Request/Response types ---

// RegisterUserRequest is the JSON body for POST /users.
type RegisterUserRequest struct {
	TelegramID int64  `json:"telegram_id"`
	ReferredBy string `json:"referred_by,omitempty"` // another user's referral code
}

// ImportWalletRequest is the JSON body for POST /users/{userID}/wallets.
// The seed arrives already encrypted; this service never decrypts it.
type ImportWalletRequest struct {
	Address       string `json:"address"`
	EncryptedSeed string `json:"encrypted_seed"`
}

// BatchTradeRequest is the JSON body for POST /trades/batch. Wallets is
// the explicit, request-scoped selection — there is no server-side
// "selected wallets" state shared between requests.
type BatchTradeRequest struct {
	UserID  int64      `json:"user_id"`
	Token   string     `json:"token"`
	Side    model.Side `json:"side"`
	Wallets []string   `json:"wallets"`

	// AmountNative is the per-wallet native spend for buys.
	AmountNative decimal.Decimal `json:"amount_native,omitempty"`

	// SellPercent (1–100) sells that share of each wallet's current
	// token balance.
	SellPercent int `json:"sell_percent,omitempty"`
}

// PositionView is one portfolio row with mark-to-market PnL.
type PositionView struct {
	WalletAddress string          `json:"wallet_address"`
	Token         string          `json:"token"`
	TokenAmount   decimal.Decimal `json:"token_amount"`
	EntryCostUSD  decimal.Decimal `json:"entry_cost_usd"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioResponse is the JSON body returned from GET /portfolio/{userID}.
type PortfolioResponse struct {
	UserID          int64           `json:"user_id"`
	Positions       []PositionView  `json:"positions"`
	TotalUnrealized decimal.Decimal `json:"total_unrealized"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	Points          int64           `json:"points"`
}

// LeaderboardEntry is one row of GET /leaderboard.
type LeaderboardEntry struct {
	Rank    int             `json:"rank"`
	Address string          `json:"address"`
	PnL     decimal.Decimal `json:"pnl"`
	Points  int64           `json:"points"`
}

// ReferralsResponse is the JSON body returned from GET /users/{userID}/referrals.
type ReferralsResponse struct {
	ReferralCode    string `json:"referral_code"`
	ReferralsTotal  int    `json:"referrals_total"`
	ReferralsActive int    `json:"referrals_active"`
}

// --- HTTP Handlers ---

// RegisterUser handles POST /api/v1/users.
func (s *Service) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TelegramID == 0 {
		writeError(w, "telegram_id is required", http.StatusBadRequest)
		return
	}

	user := &model.User{
		TelegramID:   req.TelegramID,
		ReferralCode: uuid.New().String()[:8],
		ReferredBy:   req.ReferredBy,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			writeError(w, "user already registered", http.StatusConflict)
			return
		}
		writeError(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	slog.Info("user registered", "id", user.ID, "referral_code", user.ReferralCode)
	writeJSON(w, http.StatusCreated, user)
}

// ImportWallet handles POST /api/v1/users/{userID}/wallets.
func (s *Service) ImportWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var req ImportWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Address == "" || req.EncryptedSeed == "" {
		writeError(w, "address and encrypted_seed are required", http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	wallet := &model.Wallet{Address: req.Address, UserID: userID, EncryptedSeed: req.EncryptedSeed}
	if err := s.store.CreateWallet(r.Context(), wallet); err != nil {
		writeError(w, "failed to store wallet", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, wallet)
}

// ExecuteBatchTrade handles POST /api/v1/trades/batch.
// Fans the order out across the selected wallets and returns the
// per-wallet success/failure summary — 200 even when every wallet fails.
func (s *Service) ExecuteBatchTrade(w http.ResponseWriter, r *http.Request) {
	var req BatchTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == 0 {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if !req.Side.Valid() {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	owned, err := s.store.WalletsByUser(ctx, req.UserID)
	if err != nil {
		writeError(w, "failed to load wallets", http.StatusInternalServerError)
		return
	}
	wallets := selectWallets(owned, req.Wallets)
	if len(wallets) == 0 {
		writeError(w, "no selected wallets belong to user", http.StatusBadRequest)
		return
	}

	resolve, err := s.amountResolver(req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.orchestrator.ExecuteBatch(ctx, req.UserID, wallets, req.Token, req.Side, resolve)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.wsHub != nil {
		for _, succ := range result.Successes {
			s.wsHub.Broadcast(WSMessage{
				Type:   "fill",
				UserID: req.UserID,
				Wallet: succ.Address,
				Token:  req.Token,
				Side:   string(req.Side),
				TxID:   succ.TxID,
			})
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// amountResolver builds the per-wallet amount computation: a fixed
// native spend for buys, a percentage of the live token balance for
// sells.
func (s *Service) amountResolver(req BatchTradeRequest) (batch.AmountResolver, error) {
	switch req.Side {
	case model.SideBuy:
		if req.AmountNative.LessThanOrEqual(decimal.Zero) {
			return nil, errors.New("amount_native must be positive for BUY")
		}
		amount := req.AmountNative
		return func(_ context.Context, _ model.Wallet) (decimal.Decimal, error) {
			return amount, nil
		}, nil
	default: // SELL
		if req.SellPercent < 1 || req.SellPercent > 100 {
			return nil, errors.New("sell_percent must be between 1 and 100")
		}
		percent := decimal.NewFromInt(int64(req.SellPercent)).Div(decimal.NewFromInt(100))
		token := req.Token
		return func(ctx context.Context, wlt model.Wallet) (decimal.Decimal, error) {
			bal, err := s.oracle.Balances(ctx, wlt.Address, token)
			if err != nil {
				return decimal.Zero, err
			}
			return bal.Token.Mul(percent), nil
		}, nil
	}
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}.
// Returns every position with mark-to-market PnL at current prices.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	positions, err := s.store.PositionsByUser(ctx, userID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	resp := PortfolioResponse{
		UserID:          userID,
		Positions:       []PositionView{},
		TotalUnrealized: decimal.Zero,
		RealizedPnL:     user.PnL,
		Points:          user.Points,
	}

	// One price lookup per distinct token.
	priceByToken := make(map[string]decimal.Decimal)
	for _, p := range positions {
		if p.IsZero() {
			continue
		}
		price, ok := priceByToken[p.Token]
		if !ok {
			price, _ = s.prices.Price(ctx, p.Token) // lookup failure → unknown price
			priceByToken[p.Token] = price
		}

		view := PositionView{
			WalletAddress: p.WalletAddress,
			Token:         p.Token,
			TokenAmount:   p.TokenAmount,
			EntryCostUSD:  p.EntryCostUSD,
			AvgEntryPrice: p.AvgEntryPrice(),
			CurrentPrice:  price,
		}
		if price.IsPositive() {
			view.UnrealizedPnL = p.TokenAmount.Mul(price).Sub(p.EntryCostUSD)
			resp.TotalUnrealized = resp.TotalUnrealized.Add(view.UnrealizedPnL)
		}
		resp.Positions = append(resp.Positions, view)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetTrades handles GET /api/v1/users/{userID}/trades?limit=N.
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := s.store.TradesByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	writeJSON(w, http.StatusOK, trades)
}

// GetLeaderboard handles GET /api/v1/leaderboard?limit=N.
// Users ranked by points, ties broken by registration order; each entry
// shows the user's first wallet address, as the UI layer expects.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	ctx := r.Context()

	users, err := s.store.TopUsersByPoints(ctx, limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		address := "N/A"
		if wallets, err := s.store.WalletsByUser(ctx, u.ID); err == nil && len(wallets) > 0 {
			address = wallets[0].Address
		}
		entries = append(entries, LeaderboardEntry{
			Rank:    i + 1,
			Address: address,
			PnL:     u.PnL,
			Points:  u.Points,
		})
	}

	writeJSON(w, http.StatusOK, entries)
}

// GetReferrals handles GET /api/v1/users/{userID}/referrals.
// Counts are fully recomputed on each call.
func (s *Service) GetReferrals(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	total, active, err := s.rewards.RecountReferrals(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "user not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to recount referrals", http.StatusInternalServerError)
		return
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, ReferralsResponse{
		ReferralCode:    user.ReferralCode,
		ReferralsTotal:  total,
		ReferralsActive: active,
	})
}

// --- helpers ---

func selectWallets(owned []model.Wallet, selected []string) []model.Wallet {
	if len(selected) == 0 {
		return owned // no explicit selection means all wallets
	}
	want := make(map[string]bool, len(selected))
	for _, addr := range selected {
		want[addr] = true
	}
	var out []model.Wallet
	for _, w := range owned {
		if want[w.Address] {
			out = append(out, w)
		}
	}
	return out
}

func userIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
