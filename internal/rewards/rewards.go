// Package rewards derives user PnL, points, and referral activation from
// realized trading gains. Losses are recorded in the trade log but never
// move any counter here.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
	"github.com/SolSenseiDev/sol-sensei-engine/internal/store"
)

// DefaultActivationThreshold is the cumulative realized PnL in USD at
// which a referred user counts as "active" and their referrer earns the
// one-time bonus.
var DefaultActivationThreshold = decimal.NewFromInt(100)

// pointsDivisor converts cumulative PnL to points: 1 point per $10.
var pointsDivisor = decimal.NewFromInt(10)

// ReferralBonusPoints is the one-time award to a referrer when their
// referee becomes active.
const ReferralBonusPoints = 10

// PointsForPnL derives the point total from cumulative PnL:
// floor(pnl / 10). Recomputing from PnL is idempotent and can never
// double-count.
func PointsForPnL(pnl decimal.Decimal) int64 {
	if pnl.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return pnl.Div(pointsDivisor).Floor().IntPart()
}

// Accumulator folds realized gains into the user aggregate. All writes
// go through Store.UpdateUser, which serializes concurrent wallet units
// touching the same user.
type Accumulator struct {
	store      store.Store
	activation decimal.Decimal
}

// NewAccumulator creates an accumulator. A non-positive threshold falls
// back to DefaultActivationThreshold.
func NewAccumulator(st store.Store, activationThreshold decimal.Decimal) *Accumulator {
	if activationThreshold.LessThanOrEqual(decimal.Zero) {
		activationThreshold = DefaultActivationThreshold
	}
	return &Accumulator{store: st, activation: activationThreshold}
}

// OnRealizedGain adds a positive realized gain to the user's cumulative
// PnL, rederives points, and triggers the referral activation bonus when
// the threshold is crossed. A gain <= 0 is a no-op.
func (a *Accumulator) OnRealizedGain(ctx context.Context, userID int64, gain decimal.Decimal) error {
	if gain.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	var (
		active     bool
		referredBy string
	)

	err := a.store.UpdateUser(ctx, userID, func(u *model.User) error {
		u.PnL = u.PnL.Add(gain)
		if p := PointsForPnL(u.PnL); p > u.Points {
			u.Points = p
		}
		active = !u.PnL.LessThan(a.activation)
		referredBy = u.ReferredBy
		return nil
	})
	if err != nil {
		return fmt.Errorf("rewards: accumulate gain for user %d: %w", userID, err)
	}

	if active && referredBy != "" {
		if err := a.grantReferralBonus(ctx, userID, referredBy); err != nil {
			return err
		}
	}
	return nil
}

// grantReferralBonus awards the referrer once per referee. The unique
// referral-reward row is inserted first, so retries and concurrent
// wallet units cannot grant twice.
func (a *Accumulator) grantReferralBonus(ctx context.Context, refereeID int64, referredBy string) error {
	referrer, err := a.store.GetUserByReferralCode(ctx, referredBy)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil // dangling referral code; nothing to award
		}
		return fmt.Errorf("rewards: resolve referrer of user %d: %w", refereeID, err)
	}

	reward := &model.ReferralReward{ReferrerID: referrer.ID, RefereeID: refereeID}
	if err := a.store.InsertReferralReward(ctx, reward); err != nil {
		if errors.Is(err, store.ErrRewardExists) {
			return nil // already granted
		}
		return fmt.Errorf("rewards: insert referral reward for user %d: %w", refereeID, err)
	}

	err = a.store.UpdateUser(ctx, referrer.ID, func(u *model.User) error {
		u.Points += ReferralBonusPoints
		return nil
	})
	if err != nil {
		return fmt.Errorf("rewards: award referrer %d: %w", referrer.ID, err)
	}

	slog.Info("referral activated",
		"referee", refereeID,
		"referrer", referrer.ID,
		"bonus_points", ReferralBonusPoints,
	)
	return nil
}

// RecountReferrals fully recomputes a referrer's total and active
// referral counts from the user table. A full recount (not an
// incremental counter) stays consistent even if historical PnL is
// corrected.
func (a *Accumulator) RecountReferrals(ctx context.Context, referrerID int64) (total, active int, err error) {
	referrer, err := a.store.GetUser(ctx, referrerID)
	if err != nil {
		return 0, 0, fmt.Errorf("rewards: recount referrals: %w", err)
	}

	if referrer.ReferralCode != "" {
		referred, err := a.store.UsersReferredBy(ctx, referrer.ReferralCode)
		if err != nil {
			return 0, 0, fmt.Errorf("rewards: recount referrals: %w", err)
		}
		total = len(referred)
		for _, u := range referred {
			if !u.PnL.LessThan(a.activation) {
				active++
			}
		}
	}

	err = a.store.UpdateUser(ctx, referrerID, func(u *model.User) error {
		u.ReferralsTotal = total
		u.ReferralsActive = active
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rewards: recount referrals: %w", err)
	}
	return total, active, nil
}
