package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/purrfect-spots/treats-ledger/internal/domain"
)

// SQLSTATE codes raised by the constraints the ledger relies on.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Ledger owns every balance mutation. No other code path may write to
// accounts or treat_transactions.
type Ledger struct {
	db *pgxpool.Pool
}

func NewLedger(db *pgxpool.Pool) *Ledger {
	return &Ledger{db: db}
}

// CreditPurchase credits an account from a completed payment exactly once.
// The payment session identifier is the idempotency key: redelivered
// webhooks with a session that was already credited get Applied=false and
// mutate nothing. The insert runs before the balance update so that a
// concurrent duplicate blocks on the unique index and surfaces as a
// 23505 once the winner commits.
func (l *Ledger) CreditPurchase(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO treat_transactions (account_id, amount, category, description, payment_session_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		req.AccountID, req.Amount, domain.CategoryPurchase, req.Description, req.PaymentSessionID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				// Session already credited, possibly by a concurrent
				// delivery that committed while we waited on the index.
				logrus.WithField("payment_session_id", req.PaymentSessionID).
					Info("duplicate payment session, skipping credit")
				return &domain.CreditResult{Applied: false}, nil
			case pgForeignKeyViolation:
				return nil, domain.ErrAccountNotFound
			}
		}
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	var newBalance int64
	err = tx.QueryRow(ctx,
		"UPDATE accounts SET balance = balance + $1 WHERE id = $2 RETURNING balance",
		req.Amount, req.AccountID,
	).Scan(&newBalance)
	if err != nil {
		// The rollback discards the inserted row, so a missing account
		// leaves no orphan transaction behind.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("balance credit failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	return &domain.CreditResult{Applied: true, NewBalance: &newBalance}, nil
}

// GiveTreats moves treats between two accounts in one transaction, recording
// a debit row for the giver and a credit row for the receiver linked by a
// shared gift id.
func (l *Ledger) GiveTreats(ctx context.Context, req domain.GiftRequest) (*domain.GiftResult, error) {
	if req.FromAccountID == req.ToAccountID {
		return nil, domain.ErrSelfGift
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Acquire row locks in id order so two opposing gifts cannot deadlock.
	firstID, secondID := req.FromAccountID, req.ToAccountID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	var balance1, balance2 int64
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", firstID).Scan(&balance1)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", secondID).Scan(&balance2)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}

	fromBalance := balance1
	if req.FromAccountID != firstID {
		fromBalance = balance2
	}
	if fromBalance < req.Amount {
		return nil, domain.ErrInsufficientTreats
	}

	var giftID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO treat_transactions (account_id, amount, category, description)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		req.FromAccountID, -req.Amount, domain.CategoryGiftSent, req.Note,
	).Scan(&giftID)
	if err != nil {
		return nil, fmt.Errorf("gift debit row failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO treat_transactions (account_id, amount, category, description, gift_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		req.ToAccountID, req.Amount, domain.CategoryGiftReceived, req.Note, giftID,
	)
	if err != nil {
		return nil, fmt.Errorf("gift credit row failed: %w", err)
	}

	var fromNew int64
	err = tx.QueryRow(ctx,
		"UPDATE accounts SET balance = balance - $1 WHERE id = $2 RETURNING balance",
		req.Amount, req.FromAccountID,
	).Scan(&fromNew)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return nil, domain.ErrInsufficientTreats
		}
		return nil, fmt.Errorf("gift debit failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		"UPDATE accounts SET balance = balance + $1 WHERE id = $2", req.Amount, req.ToAccountID)
	if err != nil {
		return nil, fmt.Errorf("gift credit failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	return &domain.GiftResult{
		GiftID:       giftID,
		FromBalance:  fromNew,
		ToAccountID:  req.ToAccountID,
		AmountGifted: req.Amount,
	}, nil
}
