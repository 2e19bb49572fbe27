// Package ledger implements the average-cost position ledger: each
// confirmed fill mutates one (user, wallet, token) position record, and
// sells realize PnL against the proportional cost basis.
//
// The math here is pure — positions in, positions out — so it can be
// tested exhaustively without a store. Persistence and the paired trade
// append live in the Recorder.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

var (
	// ErrEmptyFill is returned when a fill carries no token delta.
	ErrEmptyFill = errors.New("ledger: fill has zero token delta")

	// ErrNegativeCost is returned when a buy fill carries a negative
	// USD cost. A zero-cost buy (airdrop-style) is allowed.
	ErrNegativeCost = errors.New("ledger: buy fill has negative usd cost")
)

// DefaultDustThreshold is the residual token amount below which a
// position is force-zeroed to avoid decimal residue accumulating
// indefinitely.
var DefaultDustThreshold = decimal.NewFromFloat(0.0001)

// MinFillTokens is the smallest token delta worth recording; anything
// below it is treated as a no-op fill.
var MinFillTokens = decimal.NewFromFloat(0.000001)

// FillOutcome describes the effect of applying one fill to a position.
type FillOutcome struct {
	// Position is the updated record.
	Position model.Position

	// SellTokens is the amount actually closed on a sell, after
	// clamping to the held amount. Zero for buys.
	SellTokens decimal.Decimal

	// CostRemoved is the proportional cost basis removed on a sell.
	CostRemoved decimal.Decimal

	// RealizedPnL is sell proceeds minus CostRemoved. May be negative;
	// only positive values flow into reward accounting. Zero for buys.
	RealizedPnL decimal.Decimal
}

// Apply folds one fill into a position.
//
// deltaTokens and deltaUSD are signed: positive for buys, negative for
// sells (the sell USD delta is the proceeds, net of fees, negated).
// A sell of more than the held amount is clamped to the held amount —
// the clamped quantity is what gets recorded, never a negative balance.
// A sell against an empty position realizes nothing and leaves the
// position untouched.
//
// If the remaining amount falls below dust (<= 0 means use
// DefaultDustThreshold), the position is force-zeroed.
func Apply(pos model.Position, deltaTokens, deltaUSD, dust decimal.Decimal) (FillOutcome, error) {
	if deltaTokens.IsZero() {
		return FillOutcome{}, ErrEmptyFill
	}
	if dust.LessThanOrEqual(decimal.Zero) {
		dust = DefaultDustThreshold
	}

	out := FillOutcome{Position: pos}

	if deltaTokens.IsPositive() {
		if deltaUSD.IsNegative() {
			return FillOutcome{}, ErrNegativeCost
		}
		// Straight average-cost accumulation: the implied entry price
		// becomes EntryCostUSD / TokenAmount.
		out.Position.TokenAmount = pos.TokenAmount.Add(deltaTokens)
		out.Position.EntryCostUSD = pos.EntryCostUSD.Add(deltaUSD)
		return out, nil
	}

	// Sell / reduce.
	if pos.TokenAmount.LessThanOrEqual(decimal.Zero) {
		return out, nil
	}

	sellTokens := deltaTokens.Abs()
	if sellTokens.GreaterThan(pos.TokenAmount) {
		sellTokens = pos.TokenAmount // over-sell clamp
	}

	proceeds := deltaUSD.Abs()
	costRemoved := pos.EntryCostUSD.Mul(sellTokens.Div(pos.TokenAmount))

	out.SellTokens = sellTokens
	out.CostRemoved = costRemoved
	out.RealizedPnL = proceeds.Sub(costRemoved)
	out.Position.TokenAmount = pos.TokenAmount.Sub(sellTokens)
	out.Position.EntryCostUSD = pos.EntryCostUSD.Sub(costRemoved)

	if out.Position.TokenAmount.LessThan(dust) {
		out.Position.TokenAmount = decimal.Zero
		out.Position.EntryCostUSD = decimal.Zero
	}

	return out, nil
}

// Unrealized computes mark-to-market PnL for a position at the given
// price: tokenAmount * price - entryCost. A price <= 0 means "price
// unknown", not "worthless", and yields (0, 0), as does an empty
// position.
func Unrealized(pos model.Position, price decimal.Decimal) (pnlUSD, tokenAmount decimal.Decimal) {
	if pos.TokenAmount.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero
	}
	return pos.TokenAmount.Mul(price).Sub(pos.EntryCostUSD), pos.TokenAmount
}
