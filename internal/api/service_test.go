package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/batch"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/gateway"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/ledger"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/rewards"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/store"
)

const testToken = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type fakeOracle struct {
	balances map[string]gateway.Balances
}

func (o *fakeOracle) Balances(_ context.Context, address, _ string) (gateway.Balances, error) {
	return o.balances[address], nil
}

type fakeSwapper struct {
	results map[string]gateway.SwapResult
}

func (s *fakeSwapper) Execute(_ context.Context, req gateway.SwapRequest) (gateway.SwapResult, error) {
	if res, ok := s.results[req.Credential]; ok {
		return res, nil
	}
	return gateway.SwapResult{}, fmt.Errorf("no result for %s", req.Credential)
}

type fakePrices struct {
	prices map[string]decimal.Decimal
}

func (p *fakePrices) Price(_ context.Context, mint string) (decimal.Decimal, error) {
	return p.prices[mint], nil
}

type testEnv struct {
	store   *store.MemoryStore
	oracle  *fakeOracle
	swapper *fakeSwapper
	prices  *fakePrices
	router  chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	oracle := &fakeOracle{balances: make(map[string]gateway.Balances)}
	swapper := &fakeSwapper{results: make(map[string]gateway.SwapResult)}
	prices := &fakePrices{prices: map[string]decimal.Decimal{
		"So11111111111111111111111111111111111111112": d(100),
	}}

	acc := rewards.NewAccumulator(st, decimal.Zero)
	rec := ledger.NewRecorder(st, acc, decimal.Zero)
	orc := batch.NewOrchestrator(oracle, swapper, prices, rec, batch.Config{FeeBuffer: d(0.01)})
	svc := NewService(st, orc, acc, oracle, prices, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		svc.Routes(r)
	})

	return &testEnv{store: st, oracle: oracle, swapper: swapper, prices: prices, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) registerUser(t *testing.T, telegramID int64) model.User {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/users", RegisterUserRequest{TelegramID: telegramID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register user: status %d: %s", rr.Code, rr.Body)
	}
	var u model.User
	if err := json.Unmarshal(rr.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	return u
}

func (e *testEnv) importWallet(t *testing.T, userID int64, address string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/wallets", userID),
		ImportWalletRequest{Address: address, EncryptedSeed: "seed-" + address})
	if rr.Code != http.StatusCreated {
		t.Fatalf("import wallet: status %d: %s", rr.Code, rr.Body)
	}
}

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t)

	u := env.registerUser(t, 12345)
	if u.ID == 0 {
		t.Error("id not assigned")
	}
	if len(u.ReferralCode) != 8 {
		t.Errorf("referral code = %q, want 8 chars", u.ReferralCode)
	}

	// Same telegram id again conflicts.
	rr := env.do(t, http.MethodPost, "/api/v1/users", RegisterUserRequest{TelegramID: 12345})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate registration: status %d, want 409", rr.Code)
	}
}

func TestRegisterUser_MissingTelegramID(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/v1/users", RegisterUserRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rr.Code)
	}
}

func TestImportWallet_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/v1/users/999/wallets",
		ImportWalletRequest{Address: "walletA", EncryptedSeed: "s"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rr.Code)
	}
}

func TestExecuteBatchTrade_BuyAcrossWallets(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, 100)
	env.importWallet(t, u.ID, "walletA")
	env.importWallet(t, u.ID, "walletB")

	env.oracle.balances["walletA"] = gateway.Balances{Native: d(5), TokenDecimals: 6}
	env.oracle.balances["walletB"] = gateway.Balances{Native: d(5), TokenDecimals: 6}
	env.swapper.results["seed-walletA"] = gateway.SwapResult{TxID: "txA", TokenAmount: d(40), NativeAmount: d(1)}
	env.swapper.results["seed-walletB"] = gateway.SwapResult{TxID: "txB", TokenAmount: d(42), NativeAmount: d(1)}

	rr := env.do(t, http.MethodPost, "/api/v1/trades/batch", BatchTradeRequest{
		UserID:       u.ID,
		Token:        testToken,
		Side:         model.SideBuy,
		AmountNative: d(1),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}

	var res batch.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Successes) != 2 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// Both fills landed in the ledger.
	positions, _ := env.store.PositionsByUser(context.Background(), u.ID)
	if len(positions) != 2 {
		t.Errorf("expected 2 positions, got %d", len(positions))
	}
}

func TestExecuteBatchTrade_WalletSelectionScoped(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, 100)
	env.importWallet(t, u.ID, "walletA")
	env.importWallet(t, u.ID, "walletB")

	env.oracle.balances["walletA"] = gateway.Balances{Native: d(5), TokenDecimals: 6}
	env.swapper.results["seed-walletA"] = gateway.SwapResult{TxID: "txA", TokenAmount: d(40), NativeAmount: d(1)}

	rr := env.do(t, http.MethodPost, "/api/v1/trades/batch", BatchTradeRequest{
		UserID:       u.ID,
		Token:        testToken,
		Side:         model.SideBuy,
		Wallets:      []string{"walletA"},
		AmountNative: d(1),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}

	var res batch.Result
	json.Unmarshal(rr.Body.Bytes(), &res)
	if len(res.Successes) != 1 || res.Successes[0].Address != "walletA" {
		t.Errorf("selection must scope the batch, got %+v", res)
	}
}

func TestExecuteBatchTrade_ForeignWalletRejected(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, 100)
	env.importWallet(t, u.ID, "walletA")

	rr := env.do(t, http.MethodPost, "/api/v1/trades/batch", BatchTradeRequest{
		UserID:       u.ID,
		Token:        testToken,
		Side:         model.SideBuy,
		Wallets:      []string{"someoneElsesWallet"},
		AmountNative: d(1),
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rr.Code)
	}
}

func TestExecuteBatchTrade_SellPercentOfBalance(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, 100)
	env.importWallet(t, u.ID, "walletA")

	env.oracle.balances["walletA"] = gateway.Balances{Native: d(1), Token: d(40), TokenDecimals: 6}
	env.swapper.results["seed-walletA"] = gateway.SwapResult{TxID: "txSell", TokenAmount: d(20), NativeAmount: d(2)}

	// Seed a position so the sell realizes against a basis.
	rec := ledger.NewRecorder(env.store, nil, decimal.Zero)
	if _, err := rec.RecordFill(context.Background(), u.ID, "walletA", testToken, d(40), d(100), d(2.5), "txSeed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rr := env.do(t, http.MethodPost, "/api/v1/trades/batch", BatchTradeRequest{
		UserID:      u.ID,
		Token:       testToken,
		Side:        model.SideSell,
		SellPercent: 50,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}

	var res batch.Result
	json.Unmarshal(rr.Body.Bytes(), &res)
	if len(res.Successes) != 1 {
		t.Fatalf("expected success, got %+v", res.Failures)
	}

	pos, err := env.store.GetPosition(context.Background(), u.ID, "walletA", testToken)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if !pos.TokenAmount.Equal(d(20)) {
		t.Errorf("remaining tokens = %s, want 20", pos.TokenAmount)
	}
}

func TestExecuteBatchTrade_InvalidSide(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/v1/trades/batch", map[string]any{
		"user_id": 1,
		"token":   testToken,
		"side":    "HOLD",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rr.Code)
	}
}

func TestExecuteBatchTrade_BuyRequiresAmount(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, 100)
	env.importWallet(t, u.ID, "walletA")

	rr := env.do(t, http.MethodPost, "/api/v1/trades/batch", BatchTradeRequest{
		UserID: u.ID,
		Token:  testToken,
		Side:   model.SideBuy,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rr.Code)
	}
}

func TestGetPortfolio(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, 100)
	env.prices.prices[testToken] = d(3)

	rec := ledger.NewRecorder(env.store, rewards.NewAccumulator(env.store, decimal.Zero), decimal.Zero)
	// walletA holds 40 tokens bought for $100; walletB closed out a
	// position with a $50 realized gain.
	if _, err := rec.RecordFill(context.Background(), u.ID, "walletA", testToken, d(40), d(100), d(2.5), "tx1"); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if _, err := rec.RecordFill(context.Background(), u.ID, "walletB", testToken, d(10), d(50), d(5), "tx2"); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if _, err := rec.RecordFill(context.Background(), u.ID, "walletB", testToken, d(-10), d(-100), d(10), "tx3"); err != nil {
		t.Fatalf("fill: %v", err)
	}

	rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/portfolio/%d", u.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}

	var resp PortfolioResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The closed walletB position is omitted.
	if len(resp.Positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(resp.Positions))
	}
	p := resp.Positions[0]
	if p.WalletAddress != "walletA" || !p.TokenAmount.Equal(d(40)) {
		t.Errorf("unexpected position: %+v", p)
	}
	// 40 tokens * $3 - $100 cost = $20 unrealized.
	if !p.UnrealizedPnL.Equal(d(20)) {
		t.Errorf("unrealized = %s, want 20", p.UnrealizedPnL)
	}
	if !resp.TotalUnrealized.Equal(d(20)) {
		t.Errorf("total unrealized = %s, want 20", resp.TotalUnrealized)
	}
	if !resp.RealizedPnL.Equal(d(50)) {
		t.Errorf("realized = %s, want 50", resp.RealizedPnL)
	}
	if resp.Points != 5 {
		t.Errorf("points = %d, want 5", resp.Points)
	}
}

func TestGetPortfolio_UnknownPriceOmitsUnrealized(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, 100)
	// No price registered for testToken: unknown, not worthless.

	rec := ledger.NewRecorder(env.store, nil, decimal.Zero)
	if _, err := rec.RecordFill(context.Background(), u.ID, "walletA", testToken, d(40), d(100), d(2.5), "tx1"); err != nil {
		t.Fatalf("fill: %v", err)
	}

	rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/portfolio/%d", u.ID), nil)
	var resp PortfolioResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(resp.Positions))
	}
	if !resp.Positions[0].UnrealizedPnL.IsZero() || !resp.TotalUnrealized.IsZero() {
		t.Errorf("unknown price must contribute no unrealized pnl: %+v", resp.Positions[0])
	}
}

func TestGetTrades(t *testing.T) {
	env := newTestEnv(t)
	u := env.registerUser(t, 100)

	rec := ledger.NewRecorder(env.store, nil, decimal.Zero)
	for _, txid := range []string{"tx1", "tx2", "tx3"} {
		if _, err := rec.RecordFill(context.Background(), u.ID, "walletA", testToken, d(1), d(2), d(2), txid); err != nil {
			t.Fatalf("fill %s: %v", txid, err)
		}
	}

	rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/trades?limit=2", u.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}
	var trades []model.Trade
	if err := json.Unmarshal(rr.Body.Bytes(), &trades); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(trades) != 2 || trades[0].TxID != "tx3" {
		t.Errorf("unexpected trades: %+v", trades)
	}
}

func TestGetLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.registerUser(t, 100)
	u2 := env.registerUser(t, 200)
	env.importWallet(t, u2.ID, "walletB")

	seed := func(id int64, points int64) {
		if err := env.store.UpdateUser(context.Background(), id, func(u *model.User) error {
			u.Points = points
			return nil
		}); err != nil {
			t.Fatalf("seed points: %v", err)
		}
	}
	seed(u1.ID, 3)
	seed(u2.ID, 7)

	rr := env.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}
	var entries []LeaderboardEntry
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Rank != 1 || entries[0].Points != 7 || entries[0].Address != "walletB" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Address != "N/A" {
		t.Errorf("walletless user must show N/A, got %q", entries[1].Address)
	}
}

func TestGetReferrals(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.registerUser(t, 100)

	// Two referees, one active.
	rr := env.do(t, http.MethodPost, "/api/v1/users", RegisterUserRequest{TelegramID: 201, ReferredBy: referrer.ReferralCode})
	if rr.Code != http.StatusCreated {
		t.Fatalf("referee 1: %d", rr.Code)
	}
	var referee1 model.User
	json.Unmarshal(rr.Body.Bytes(), &referee1)
	rr = env.do(t, http.MethodPost, "/api/v1/users", RegisterUserRequest{TelegramID: 202, ReferredBy: referrer.ReferralCode})
	if rr.Code != http.StatusCreated {
		t.Fatalf("referee 2: %d", rr.Code)
	}

	acc := rewards.NewAccumulator(env.store, decimal.Zero)
	if err := acc.OnRealizedGain(context.Background(), referee1.ID, d(150)); err != nil {
		t.Fatalf("gain: %v", err)
	}

	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/referrals", referrer.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}
	var resp ReferralsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ReferralCode != referrer.ReferralCode {
		t.Errorf("referral code = %q, want %q", resp.ReferralCode, referrer.ReferralCode)
	}
	if resp.ReferralsTotal != 2 || resp.ReferralsActive != 1 {
		t.Errorf("counts = (%d,%d), want (2,1)", resp.ReferralsTotal, resp.ReferralsActive)
	}
}

func TestGetReferrals_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/users/999/referrals", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rr.Code)
	}
}
