package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// A single mutex guards everything; UpdateUser holds it for the whole
// read-modify-write, which trivially satisfies the per-user
// serialization requirement.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]*model.User
	wallets    map[string]*model.Wallet // address → wallet
	positions  map[posKey]*model.Position
	trades     []model.Trade
	tradeTxIDs map[string]bool
	rewards    map[int64]*model.ReferralReward // referee id → reward
	nextUserID int64
	nextRwdID  int64
}

type posKey struct {
	userID int64
	wallet string
	token  string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int64]*model.User),
		wallets:    make(map[string]*model.Wallet),
		positions:  make(map[posKey]*model.Position),
		tradeTxIDs: make(map[string]bool),
		rewards:    make(map[int64]*model.ReferralReward),
		nextUserID: 1,
		nextRwdID:  1,
	}
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.TelegramID == u.TelegramID {
			return ErrDuplicateUser
		}
	}

	u.ID = s.nextUserID
	s.nextUserID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	copy := *u
	s.users[u.ID] = &copy
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) GetUserByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.TelegramID == telegramID {
			copy := *u
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByReferralCode(_ context.Context, code string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if code == "" {
		return nil, ErrNotFound
	}
	for _, u := range s.users {
		if u.ReferralCode == code {
			copy := *u
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UsersReferredBy(_ context.Context, code string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var referred []model.User
	if code == "" {
		return referred, nil
	}
	for _, u := range s.users {
		if u.ReferredBy == code {
			referred = append(referred, *u)
		}
	}
	sort.Slice(referred, func(i, j int) bool { return referred[i].ID < referred[j].ID })
	return referred, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, id int64, fn func(u *model.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}

	// Mutate a copy so a failing fn leaves the stored row untouched.
	updated := *u
	if err := fn(&updated); err != nil {
		return err
	}
	s.users[id] = &updated
	return nil
}

func (s *MemoryStore) TopUsersByPoints(_ context.Context, limit int) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Points != users[j].Points {
			return users[i].Points > users[j].Points
		}
		return users[i].ID < users[j].ID
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// --- Wallets ---

func (s *MemoryStore) CreateWallet(_ context.Context, w *model.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *w
	s.wallets[w.Address] = &copy
	return nil
}

func (s *MemoryStore) WalletsByUser(_ context.Context, userID int64) ([]model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wallets []model.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			wallets = append(wallets, *w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Address < wallets[j].Address })
	return wallets, nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, userID int64, wallet, token string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[posKey{userID, wallet, token}]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) PositionsByUser(_ context.Context, userID int64) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].WalletAddress != positions[j].WalletAddress {
			return positions[i].WalletAddress < positions[j].WalletAddress
		}
		return positions[i].Token < positions[j].Token
	})
	return positions, nil
}

// --- Fills ---

func (s *MemoryStore) RecordFill(_ context.Context, pos *model.Position, trade *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tradeTxIDs[trade.TxID] {
		return ErrDuplicateTxID
	}

	posCopy := *pos
	posCopy.UpdatedAt = time.Now().UTC()
	s.positions[posKey{pos.UserID, pos.WalletAddress, pos.Token}] = &posCopy

	s.trades = append(s.trades, *trade)
	s.tradeTxIDs[trade.TxID] = true
	return nil
}

func (s *MemoryStore) TradesByUser(_ context.Context, userID int64, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trades []model.Trade
	for i := len(s.trades) - 1; i >= 0; i-- { // newest first
		if s.trades[i].UserID != userID {
			continue
		}
		trades = append(trades, s.trades[i])
		if limit > 0 && len(trades) == limit {
			break
		}
	}
	return trades, nil
}

// --- Referral rewards ---

func (s *MemoryStore) InsertReferralReward(_ context.Context, r *model.ReferralReward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rewards[r.RefereeID]; ok {
		return ErrRewardExists
	}

	r.ID = s.nextRwdID
	s.nextRwdID++
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	copy := *r
	s.rewards[r.RefereeID] = &copy
	return nil
}
