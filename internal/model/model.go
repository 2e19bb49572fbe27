// Package model defines the core domain types shared across the trading engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is a recognized trade side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// User is the reward-accounting view of an account holder.
// PnL only ever grows (losses never decrease it) and Points are derived
// from PnL, never incremented ad hoc.
type User struct {
	ID              int64           `json:"id" db:"id"`
	TelegramID      int64           `json:"telegram_id" db:"telegram_id"`
	PnL             decimal.Decimal `json:"pnl" db:"pnl"`
	Points          int64           `json:"points" db:"points"`
	ReferralCode    string          `json:"referral_code" db:"referral_code"`
	ReferredBy      string          `json:"referred_by,omitempty" db:"referred_by"`
	ReferralsTotal  int             `json:"referrals_total" db:"referrals_total"`
	ReferralsActive int             `json:"referrals_active" db:"referrals_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Wallet is a custody-held signing wallet owned by exactly one user.
// EncryptedSeed is an opaque credential passed through to the swap
// executor; this engine never decrypts it.
type Wallet struct {
	Address       string `json:"address" db:"address"`
	UserID        int64  `json:"user_id" db:"user_id"`
	EncryptedSeed string `json:"-" db:"encrypted_seed"`
}

// Position is the average-cost record for one (user, wallet, token).
// Invariants: TokenAmount >= 0, EntryCostUSD >= 0, and EntryCostUSD == 0
// whenever TokenAmount == 0. Positions are never deleted, only decayed
// to zero.
type Position struct {
	UserID        int64           `json:"user_id" db:"user_id"`
	WalletAddress string          `json:"wallet_address" db:"wallet_address"`
	Token         string          `json:"token" db:"token"`
	TokenAmount   decimal.Decimal `json:"token_amount" db:"token_amount"`
	EntryCostUSD  decimal.Decimal `json:"entry_cost_usd" db:"entry_cost_usd"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// IsZero reports whether the position holds nothing.
func (p Position) IsZero() bool {
	return p.TokenAmount.IsZero()
}

// AvgEntryPrice returns EntryCostUSD / TokenAmount, or zero for an
// empty position.
func (p Position) AvgEntryPrice() decimal.Decimal {
	if p.TokenAmount.IsZero() {
		return decimal.Zero
	}
	return p.EntryCostUSD.Div(p.TokenAmount)
}

// Trade is an immutable record of one confirmed on-chain fill.
// Once created, these are never modified or deleted.
type Trade struct {
	ID            string           `json:"id" db:"id"`
	UserID        int64            `json:"user_id" db:"user_id"`
	WalletAddress string           `json:"wallet_address" db:"wallet_address"`
	Token         string           `json:"token" db:"token"`
	Side          Side             `json:"side" db:"side"`
	TokenAmount   decimal.Decimal  `json:"token_amount" db:"token_amount"` // always positive
	AmountUSD     decimal.Decimal  `json:"amount_usd" db:"amount_usd"`     // always positive
	PricePerToken decimal.Decimal  `json:"price_per_token" db:"price_per_token"`
	RealizedPnL   *decimal.Decimal `json:"realized_pnl,omitempty" db:"realized_pnl"` // SELL only; may be negative
	TxID          string           `json:"txid" db:"txid"`                           // unique per fill
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// ReferralReward is the one-row fact that makes the referral activation
// bonus idempotent: at most one reward ever exists per referee.
type ReferralReward struct {
	ID         int64     `json:"id" db:"id"`
	ReferrerID int64     `json:"referrer_id" db:"referrer_id"`
	RefereeID  int64     `json:"referee_id" db:"referee_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
