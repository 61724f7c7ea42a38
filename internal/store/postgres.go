package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/purrfect-spots/treats-ledger/internal/domain"
)

type Store struct {
	Db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// Migrate creates the ledger schema if it does not exist. The unique index
// on payment_session_id is what makes the purchase credit idempotent; the
// CHECK constraint backs the non-negative balance invariant at the lowest
// layer.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS treat_transactions (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			amount BIGINT NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			payment_session_id TEXT,
			gift_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS treat_transactions_payment_session_id_key
			ON treat_transactions (payment_session_id)`,
		`CREATE INDEX IF NOT EXISTS treat_transactions_account_id_idx
			ON treat_transactions (account_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.Db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateAccount creates a new account with 0 treats.
func (s *Store) CreateAccount(ctx context.Context) (int64, error) {
	var id int64
	err := s.Db.QueryRow(ctx, "INSERT INTO accounts (balance) VALUES (0) RETURNING id").Scan(&id)
	return id, err
}

// GetAccount retrieves a single account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var account domain.Account
	err := s.Db.QueryRow(ctx,
		"SELECT id, balance, created_at FROM accounts WHERE id = $1",
		id).Scan(&account.ID, &account.Balance, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListTransactions retrieves ledger rows for an account, newest first.
func (s *Store) ListTransactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error) {
	var exists bool
	err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)", accountID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrAccountNotFound
	}

	rows, err := s.Db.Query(ctx,
		`SELECT id, account_id, amount, category, description, payment_session_id, gift_id, created_at
		 FROM treat_transactions WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &t.Category, &t.Description,
			&t.PaymentSessionID, &t.GiftID, &t.CreatedAt); err != nil {
			logrus.WithError(err).Warn("skipping unreadable transaction row")
			continue
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Leaderboard returns the accounts with the highest balances.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT id, balance FROM accounts ORDER BY balance DESC, id ASC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	rank := 0
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Balance); err != nil {
			return nil, err
		}
		rank++
		e.Rank = rank
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
