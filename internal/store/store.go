// Package store defines the persistence interface for the trading engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateTxID is returned when a trade with the same txid has
	// already been recorded. Protects the ledger against duplicate
	// delivery of the same on-chain fill.
	ErrDuplicateTxID = errors.New("store: trade with this txid already recorded")

	// ErrRewardExists is returned when a referral reward for the
	// referee has already been granted.
	ErrRewardExists = errors.New("store: referral reward already granted for referee")

	// ErrDuplicateUser is returned when a user with the same telegram
	// id already exists.
	ErrDuplicateUser = errors.New("store: user already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Users ---

	// CreateUser persists a new user. The caller assigns the referral
	// code; the store assigns the id.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, id int64) (*model.User, error)

	// GetUserByTelegramID retrieves a user by telegram id.
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)

	// GetUserByReferralCode retrieves the user owning a referral code.
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)

	// UsersReferredBy returns all users whose ReferredBy equals code.
	UsersReferredBy(ctx context.Context, code string) ([]model.User, error)

	// UpdateUser applies fn to the user row under a per-user write
	// lock: concurrent wallet units updating the same user aggregate
	// are serialized here, never lost-updated.
	UpdateUser(ctx context.Context, id int64, fn func(u *model.User) error) error

	// TopUsersByPoints returns users ordered by points descending,
	// ties broken by ascending id (registration order).
	TopUsersByPoints(ctx context.Context, limit int) ([]model.User, error)

	// --- Wallets ---

	// CreateWallet persists a wallet owned by a user.
	CreateWallet(ctx context.Context, w *model.Wallet) error

	// WalletsByUser returns all wallets owned by a user.
	WalletsByUser(ctx context.Context, userID int64) ([]model.Wallet, error)

	// --- Positions ---

	// GetPosition retrieves the live position for one
	// (user, wallet, token) triple, or ErrNotFound.
	GetPosition(ctx context.Context, userID int64, wallet, token string) (*model.Position, error)

	// PositionsByUser returns all of a user's positions across wallets.
	PositionsByUser(ctx context.Context, userID int64) ([]model.Position, error)

	// --- Fills ---

	// RecordFill atomically upserts the position and appends the trade
	// row: both succeed or neither does, so the audit log and position
	// state can never diverge. Returns ErrDuplicateTxID if the trade's
	// txid was already recorded, leaving the position untouched.
	RecordFill(ctx context.Context, pos *model.Position, trade *model.Trade) error

	// TradesByUser returns a user's trades, newest first.
	TradesByUser(ctx context.Context, userID int64, limit int) ([]model.Trade, error)

	// --- Referral rewards ---

	// InsertReferralReward records the one-time activation bonus fact.
	// Returns ErrRewardExists if the referee was already rewarded.
	InsertReferralReward(ctx context.Context, r *model.ReferralReward) error
}
