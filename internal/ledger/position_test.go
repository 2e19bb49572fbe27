package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func pos(tokens, cost float64) model.Position {
	return model.Position{
		UserID:        1,
		WalletAddress: "wallet1",
		Token:         "token1",
		TokenAmount:   d(tokens),
		EntryCostUSD:  d(cost),
	}
}

// --- Buy tests ---

func TestApply_FirstBuyCreatesPosition(t *testing.T) {
	out, err := Apply(pos(0, 0), d(10), d(100), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Position.TokenAmount.Equal(d(10)) {
		t.Errorf("expected 10 tokens, got %s", out.Position.TokenAmount)
	}
	if !out.Position.EntryCostUSD.Equal(d(100)) {
		t.Errorf("expected cost 100, got %s", out.Position.EntryCostUSD)
	}
	if !out.RealizedPnL.IsZero() {
		t.Errorf("buy must not realize pnl, got %s", out.RealizedPnL)
	}
}

func TestApply_AverageCostIsVolumeWeighted(t *testing.T) {
	// Fills at different prices; the implied entry price must equal the
	// volume-weighted average of the fill prices.
	fills := []struct{ tokens, usd float64 }{
		{10, 100}, // $10/token
		{30, 150}, // $5/token
		{20, 400}, // $20/token
	}

	p := pos(0, 0)
	totalTokens := decimal.Zero
	totalUSD := decimal.Zero
	for _, f := range fills {
		out, err := Apply(p, d(f.tokens), d(f.usd), decimal.Zero)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		p = out.Position
		totalTokens = totalTokens.Add(d(f.tokens))
		totalUSD = totalUSD.Add(d(f.usd))
	}

	vwap := totalUSD.Div(totalTokens)
	avg := p.AvgEntryPrice()
	if avg.Sub(vwap).Abs().GreaterThan(d(0.00000001)) {
		t.Errorf("avg entry price %s != vwap %s", avg, vwap)
	}
}

func TestApply_ZeroCostBuyAllowed(t *testing.T) {
	out, err := Apply(pos(0, 0), d(5), decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Position.EntryCostUSD.IsZero() {
		t.Errorf("expected zero cost, got %s", out.Position.EntryCostUSD)
	}
}

func TestApply_NegativeCostBuyRejected(t *testing.T) {
	_, err := Apply(pos(0, 0), d(5), d(-10), decimal.Zero)
	if err != ErrNegativeCost {
		t.Errorf("expected ErrNegativeCost, got %v", err)
	}
}

func TestApply_EmptyFillRejected(t *testing.T) {
	_, err := Apply(pos(10, 100), decimal.Zero, d(5), decimal.Zero)
	if err != ErrEmptyFill {
		t.Errorf("expected ErrEmptyFill, got %v", err)
	}
}

// --- Sell tests ---

func TestApply_SellRealizesProportionalPnL(t *testing.T) {
	// Buy 10 for $100 (avg $10), sell 4 for $60:
	// cost removed = 100 * 4/10 = 40, realized = 60 - 40 = 20,
	// remaining = 6 tokens / $60 cost, avg still $10.
	out, err := Apply(pos(10, 100), d(-4), d(-60), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.SellTokens.Equal(d(4)) {
		t.Errorf("expected 4 tokens sold, got %s", out.SellTokens)
	}
	if !out.CostRemoved.Equal(d(40)) {
		t.Errorf("expected cost removed 40, got %s", out.CostRemoved)
	}
	if !out.RealizedPnL.Equal(d(20)) {
		t.Errorf("expected realized 20, got %s", out.RealizedPnL)
	}
	if !out.Position.TokenAmount.Equal(d(6)) {
		t.Errorf("expected 6 tokens left, got %s", out.Position.TokenAmount)
	}
	if !out.Position.EntryCostUSD.Equal(d(60)) {
		t.Errorf("expected cost 60 left, got %s", out.Position.EntryCostUSD)
	}
	if !out.Position.AvgEntryPrice().Equal(d(10)) {
		t.Errorf("avg entry price should still be 10, got %s", out.Position.AvgEntryPrice())
	}
}

func TestApply_SellAtAvgEntryPriceRealizesZero(t *testing.T) {
	// Selling at exactly the average entry price nets zero pnl.
	out, err := Apply(pos(8, 96), d(-3), d(-36), decimal.Zero) // avg = $12
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RealizedPnL.Abs().GreaterThan(d(0.00000001)) {
		t.Errorf("expected ~0 realized, got %s", out.RealizedPnL)
	}
}

func TestApply_SellAtLossRealizesNegative(t *testing.T) {
	out, err := Apply(pos(10, 100), d(-5), d(-30), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.RealizedPnL.Equal(d(-20)) {
		t.Errorf("expected realized -20, got %s", out.RealizedPnL)
	}
}

func TestApply_OverSellClamped(t *testing.T) {
	// Selling more than held clamps to the held amount and closes the
	// position, never producing a negative balance.
	out, err := Apply(pos(10, 100), d(-25), d(-150), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.SellTokens.Equal(d(10)) {
		t.Errorf("expected clamp to 10, got %s", out.SellTokens)
	}
	if !out.Position.TokenAmount.IsZero() {
		t.Errorf("expected empty position, got %s", out.Position.TokenAmount)
	}
	if !out.Position.EntryCostUSD.IsZero() {
		t.Errorf("closed position must have zero cost, got %s", out.Position.EntryCostUSD)
	}
	// Full cost basis removed, full proceeds realized.
	if !out.RealizedPnL.Equal(d(50)) {
		t.Errorf("expected realized 50, got %s", out.RealizedPnL)
	}
}

func TestApply_SellEmptyPositionIsNoop(t *testing.T) {
	out, err := Apply(pos(0, 0), d(-5), d(-50), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.RealizedPnL.IsZero() || !out.SellTokens.IsZero() {
		t.Errorf("empty position sell must realize nothing, got pnl=%s sold=%s",
			out.RealizedPnL, out.SellTokens)
	}
}

func TestApply_DustResidueForceZeroed(t *testing.T) {
	// Leaving 0.00005 tokens (< default dust 0.0001) zeroes the position.
	out, err := Apply(pos(1, 100), d(-0.99995), d(-120), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Position.TokenAmount.IsZero() {
		t.Errorf("dust residue should be zeroed, got %s", out.Position.TokenAmount)
	}
	if !out.Position.EntryCostUSD.IsZero() {
		t.Errorf("dusted position must have zero cost, got %s", out.Position.EntryCostUSD)
	}
}

func TestApply_AboveDustSurvives(t *testing.T) {
	out, err := Apply(pos(1, 100), d(-0.999), d(-120), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Position.TokenAmount.IsZero() {
		t.Error("residue above dust threshold must survive")
	}
}

// --- Unrealized PnL tests ---

func TestUnrealized_Basic(t *testing.T) {
	pnl, amount := Unrealized(pos(10, 100), d(15))
	if !pnl.Equal(d(50)) {
		t.Errorf("expected unrealized 50, got %s", pnl)
	}
	if !amount.Equal(d(10)) {
		t.Errorf("expected amount 10, got %s", amount)
	}
}

func TestUnrealized_UnknownPrice(t *testing.T) {
	// Price <= 0 means unknown, not worthless.
	pnl, amount := Unrealized(pos(10, 100), decimal.Zero)
	if !pnl.IsZero() || !amount.IsZero() {
		t.Errorf("unknown price must yield (0,0), got (%s,%s)", pnl, amount)
	}
}

func TestUnrealized_EmptyPosition(t *testing.T) {
	pnl, amount := Unrealized(pos(0, 0), d(15))
	if !pnl.IsZero() || !amount.IsZero() {
		t.Errorf("empty position must yield (0,0), got (%s,%s)", pnl, amount)
	}
}
