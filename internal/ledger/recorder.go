package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/metrics"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/store"
)

// ErrDuplicateFill is returned when a fill's txid has already been
// recorded; the ledger state is unchanged by the duplicate attempt.
var ErrDuplicateFill = errors.New("ledger: fill already recorded for txid")

// RewardsSink receives realized gains after a fill is durably recorded.
type RewardsSink interface {
	OnRealizedGain(ctx context.Context, userID int64, gain decimal.Decimal) error
}

// Recorder converts confirmed fills into ledger mutations: it applies
// the average-cost math, persists the position and the trade row as a
// single transaction, and forwards realized gains to rewards.
type Recorder struct {
	store   store.Store
	rewards RewardsSink
	dust    decimal.Decimal
}

// NewRecorder creates a Recorder. A non-positive dust threshold falls
// back to DefaultDustThreshold. The rewards sink may be nil when reward
// accounting is not wanted (tests, backfills).
func NewRecorder(st store.Store, rewards RewardsSink, dust decimal.Decimal) *Recorder {
	if dust.LessThanOrEqual(decimal.Zero) {
		dust = DefaultDustThreshold
	}
	return &Recorder{store: st, rewards: rewards, dust: dust}
}

// RecordFill records one confirmed on-chain fill.
//
// deltaTokens and deltaUSD are signed (positive buy, negative sell, the
// sell USD delta net of fees). Fills below MinFillTokens are ignored and
// return a zero outcome. On success the returned outcome carries the
// updated position and any realized PnL.
func (r *Recorder) RecordFill(
	ctx context.Context,
	userID int64,
	wallet, token string,
	deltaTokens, deltaUSD, pricePerToken decimal.Decimal,
	txid string,
) (FillOutcome, error) {
	if deltaTokens.Abs().LessThan(MinFillTokens) {
		return FillOutcome{}, nil
	}

	pos, err := r.store.GetPosition(ctx, userID, wallet, token)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return FillOutcome{}, fmt.Errorf("ledger: load position: %w", err)
		}
		pos = &model.Position{UserID: userID, WalletAddress: wallet, Token: token}
	}

	out, err := Apply(*pos, deltaTokens, deltaUSD, r.dust)
	if err != nil {
		return FillOutcome{}, err
	}

	side := model.SideBuy
	if deltaTokens.IsNegative() {
		side = model.SideSell
	}

	trade := &model.Trade{
		ID:            uuid.New().String(),
		UserID:        userID,
		WalletAddress: wallet,
		Token:         token,
		Side:          side,
		TokenAmount:   deltaTokens.Abs(),
		AmountUSD:     deltaUSD.Abs(),
		PricePerToken: pricePerToken,
		TxID:          txid,
		CreatedAt:     time.Now().UTC(),
	}
	if side == model.SideSell {
		realized := out.RealizedPnL
		trade.RealizedPnL = &realized
	}

	if err := r.store.RecordFill(ctx, &out.Position, trade); err != nil {
		if errors.Is(err, store.ErrDuplicateTxID) {
			return FillOutcome{}, ErrDuplicateFill
		}
		return FillOutcome{}, fmt.Errorf("ledger: record fill %s: %w", txid, err)
	}

	slog.Info("fill recorded",
		"user", userID,
		"wallet", wallet,
		"token", token,
		"side", side,
		"tokens", deltaTokens.Abs().String(),
		"usd", deltaUSD.Abs().String(),
		"txid", txid,
	)

	if out.RealizedPnL.IsPositive() {
		metrics.RealizedGains.Add(out.RealizedPnL.InexactFloat64())
		if r.rewards != nil {
			if err := r.rewards.OnRealizedGain(ctx, userID, out.RealizedPnL); err != nil {
				// The fill itself is durable; reward lag is recoverable by
				// replaying the trade log.
				slog.Error("reward accumulation failed", "user", userID, "txid", txid, "err", err)
			}
		}
	}

	return out, nil
}

// UnrealizedPnL reports mark-to-market PnL for one position at
// currentPrice. Missing positions and unknown prices yield (0, 0).
func (r *Recorder) UnrealizedPnL(
	ctx context.Context,
	userID int64,
	wallet, token string,
	currentPrice decimal.Decimal,
) (pnlUSD, tokenAmount decimal.Decimal, err error) {
	pos, err := r.store.GetPosition(ctx, userID, wallet, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, decimal.Zero, nil
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("ledger: load position: %w", err)
	}
	pnlUSD, tokenAmount = Unrealized(*pos, currentPrice)
	return pnlUSD, tokenAmount, nil
}
