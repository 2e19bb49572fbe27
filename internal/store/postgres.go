package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/SolSenseiDev/sol-sensei-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (telegram_id, pnl, points, referral_code, referred_by, referrals_total, referrals_active, created_at)
		 VALUES ($1, $2::NUMERIC, $3, $4, NULLIF($5, ''), $6, $7, $8)
		 RETURNING id`,
		u.TelegramID, u.PnL.String(), u.Points,
		u.ReferralCode, u.ReferredBy,
		u.ReferralsTotal, u.ReferralsActive, u.CreatedAt,
	).Scan(&u.ID)
	if isUniqueViolation(err, "users_telegram_id_key") {
		return ErrDuplicateUser
	}
	return err
}

const userColumns = `id, telegram_id, pnl::TEXT, points, referral_code,
       COALESCE(referred_by, ''), referrals_total, referrals_active, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var pnl string
	err := row.Scan(&u.ID, &u.TelegramID, &pnl, &u.Points,
		&u.ReferralCode, &u.ReferredBy,
		&u.ReferralsTotal, &u.ReferralsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.PnL, _ = decimal.NewFromString(pnl)
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
}

func (s *PostgresStore) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
}

func (s *PostgresStore) UsersReferredBy(ctx context.Context, code string) ([]model.User, error) {
	if code == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE referred_by = $1 ORDER BY id`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// UpdateUser serializes concurrent writers on the user row with
// SELECT ... FOR UPDATE inside one transaction.
func (s *PostgresStore) UpdateUser(ctx context.Context, id int64, fn func(u *model.User) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("update user %d: begin: %w", id, err)
	}
	defer tx.Rollback(ctx)

	u, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}

	if err := fn(u); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE users
		 SET pnl = $2::NUMERIC, points = $3, referred_by = NULLIF($4, ''),
		     referrals_total = $5, referrals_active = $6
		 WHERE id = $1`,
		id, u.PnL.String(), u.Points, u.ReferredBy,
		u.ReferralsTotal, u.ReferralsActive,
	)
	if err != nil {
		return fmt.Errorf("update user %d: %w", id, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) TopUsersByPoints(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY points DESC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows pgx.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// --- Wallets ---

func (s *PostgresStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (address, user_id, encrypted_seed) VALUES ($1, $2, $3)`,
		w.Address, w.UserID, w.EncryptedSeed,
	)
	return err
}

func (s *PostgresStore) WalletsByUser(ctx context.Context, userID int64) ([]model.Wallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, user_id, encrypted_seed FROM wallets WHERE user_id = $1 ORDER BY address`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		var w model.Wallet
		if err := rows.Scan(&w.Address, &w.UserID, &w.EncryptedSeed); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// --- Positions ---

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var amount, cost string
	err := row.Scan(&p.UserID, &p.WalletAddress, &p.Token, &amount, &cost, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.TokenAmount, _ = decimal.NewFromString(amount)
	p.EntryCostUSD, _ = decimal.NewFromString(cost)
	return &p, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID int64, wallet, token string) (*model.Position, error) {
	return scanPosition(s.pool.QueryRow(ctx,
		`SELECT user_id, wallet_address, token, token_amount::TEXT, entry_cost_usd::TEXT, updated_at
		 FROM positions
		 WHERE user_id = $1 AND wallet_address = $2 AND token = $3`,
		userID, wallet, token))
}

func (s *PostgresStore) PositionsByUser(ctx context.Context, userID int64) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, wallet_address, token, token_amount::TEXT, entry_cost_usd::TEXT, updated_at
		 FROM positions
		 WHERE user_id = $1
		 ORDER BY wallet_address, token`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// --- Fills ---

// RecordFill upserts the position and appends the trade row in one
// transaction. The unique index on trades.txid rejects duplicate
// delivery before the position is touched.
func (s *PostgresStore) RecordFill(ctx context.Context, pos *model.Position, trade *model.Trade) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("record fill: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var realized *string
	if trade.RealizedPnL != nil {
		v := trade.RealizedPnL.String()
		realized = &v
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO trades (id, user_id, wallet_address, token, side, token_amount, amount_usd, price_per_token, realized_pnl, txid, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		trade.ID, trade.UserID, trade.WalletAddress, trade.Token, trade.Side,
		trade.TokenAmount.String(), trade.AmountUSD.String(), trade.PricePerToken.String(),
		realized, trade.TxID, trade.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "trades_txid_key") {
			return ErrDuplicateTxID
		}
		return fmt.Errorf("record fill: insert trade: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO positions (user_id, wallet_address, token, token_amount, entry_cost_usd, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, NOW())
		 ON CONFLICT (user_id, wallet_address, token) DO UPDATE
		 SET token_amount = EXCLUDED.token_amount,
		     entry_cost_usd = EXCLUDED.entry_cost_usd,
		     updated_at = NOW()`,
		pos.UserID, pos.WalletAddress, pos.Token,
		pos.TokenAmount.String(), pos.EntryCostUSD.String(),
	)
	if err != nil {
		return fmt.Errorf("record fill: upsert position: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) TradesByUser(ctx context.Context, userID int64, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, wallet_address, token, side,
		        token_amount::TEXT, amount_usd::TEXT, price_per_token::TEXT,
		        realized_pnl::TEXT, txid, created_at
		 FROM trades
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var amount, usd, price string
		var realized *string

		if err := rows.Scan(&t.ID, &t.UserID, &t.WalletAddress, &t.Token, &t.Side,
			&amount, &usd, &price, &realized, &t.TxID, &t.CreatedAt); err != nil {
			return nil, err
		}

		t.TokenAmount, _ = decimal.NewFromString(amount)
		t.AmountUSD, _ = decimal.NewFromString(usd)
		t.PricePerToken, _ = decimal.NewFromString(price)
		if realized != nil {
			v, _ := decimal.NewFromString(*realized)
			t.RealizedPnL = &v
		}

		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// --- Referral rewards ---

func (s *PostgresStore) InsertReferralReward(ctx context.Context, r *model.ReferralReward) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO referral_rewards (referrer_id, referee_id, created_at)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		r.ReferrerID, r.RefereeID, r.CreatedAt,
	).Scan(&r.ID)
	if isUniqueViolation(err, "referral_rewards_referee_id_key") {
		return ErrRewardExists
	}
	return err
}
