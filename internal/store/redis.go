package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: users, per-user positions, and the
// leaderboard. Writes go to the primary store and invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Users ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.rdb.Del(ctx, leaderboardKey())
	return nil
}

func (s *CachedStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var u model.User
		if json.Unmarshal(data, &u) == nil {
			return &u, nil
		}
	}

	u, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(u); err == nil {
		s.rdb.Set(ctx, userKey(id), data, s.ttl)
	}
	return u, nil
}

// UpdateUser writes through to the primary and invalidates both the
// user entry and the leaderboard (points may have changed).
func (s *CachedStore) UpdateUser(ctx context.Context, id int64, fn func(u *model.User) error) error {
	if err := s.primary.UpdateUser(ctx, id, fn); err != nil {
		return err
	}
	s.rdb.Del(ctx, userKey(id), leaderboardKey())
	return nil
}

func (s *CachedStore) TopUsersByPoints(ctx context.Context, limit int) ([]model.User, error) {
	data, err := s.rdb.Get(ctx, leaderboardKey()).Bytes()
	if err == nil {
		var users []model.User
		if json.Unmarshal(data, &users) == nil && len(users) >= limit {
			return users[:limit], nil
		}
	}

	users, err := s.primary.TopUsersByPoints(ctx, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(users); err == nil {
		s.rdb.Set(ctx, leaderboardKey(), data, s.ttl)
	}
	return users, nil
}

// --- Positions ---

func (s *CachedStore) PositionsByUser(ctx context.Context, userID int64) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.PositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Fills ---

func (s *CachedStore) RecordFill(ctx context.Context, pos *model.Position, trade *model.Trade) error {
	if err := s.primary.RecordFill(ctx, pos, trade); err != nil {
		return err
	}
	// Invalidate this user's position cache; next read re-populates.
	s.rdb.Del(ctx, positionsKey(pos.UserID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.primary.GetUserByTelegramID(ctx, telegramID)
}

func (s *CachedStore) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return s.primary.GetUserByReferralCode(ctx, code)
}

func (s *CachedStore) UsersReferredBy(ctx context.Context, code string) ([]model.User, error) {
	return s.primary.UsersReferredBy(ctx, code)
}

func (s *CachedStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	return s.primary.CreateWallet(ctx, w)
}

func (s *CachedStore) WalletsByUser(ctx context.Context, userID int64) ([]model.Wallet, error) {
	return s.primary.WalletsByUser(ctx, userID)
}

// GetPosition is deliberately uncached: it feeds ledger writes, which
// must always see the primary's state.
func (s *CachedStore) GetPosition(ctx context.Context, userID int64, wallet, token string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, wallet, token)
}

func (s *CachedStore) TradesByUser(ctx context.Context, userID int64, limit int) ([]model.Trade, error) {
	return s.primary.TradesByUser(ctx, userID, limit)
}

func (s *CachedStore) InsertReferralReward(ctx context.Context, r *model.ReferralReward) error {
	return s.primary.InsertReferralReward(ctx, r)
}

// --- Cache keys ---

func userKey(id int64) string       { return fmt.Sprintf("user:%d", id) }
func positionsKey(uid int64) string { return fmt.Sprintf("positions:%d", uid) }
func leaderboardKey() string        { return "leaderboard" }
