package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/user/papertrade/backend/internal/ledger"
	"github.com/user/papertrade/backend/internal/models"
)

var _ ledger.Ledger = (*Store)(nil)

// Update runs fn inside one transaction holding the user's row lock, so concurrent
// updates for the same user are serialized and fn's mutations commit together.
func (s *Store) Update(ctx context.Context, userID uuid.UUID, fn func(ledger.Account) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
			}
			return fmt.Errorf("error locking account for user %s: %w", userID, err)
		}
		return fn(&txAccount{tx: tx, userID: userID})
	})
}

// Snapshot reads balance and holdings in one read-only transaction.
func (s *Store) Snapshot(ctx context.Context, userID uuid.UUID) (*models.Portfolio, error) {
	var portfolio *models.Portfolio
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		portfolio, err = s.readPortfolio(ctx, tx, userID)
		return err
	})
	return portfolio, err
}

func (s *Store) readPortfolio(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Portfolio, error) {
	q := s.querier(tx)
	portfolio := &models.Portfolio{UserID: userID, Tokens: make(map[string]decimal.Decimal)}

	var balance string
	err := q.QueryRow(ctx, `SELECT balance::text FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("error reading balance for user %s: %w", userID, err)
	}
	if portfolio.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("error parsing balance for user %s: %w", userID, err)
	}

	rows, err := q.Query(ctx, `SELECT asset, quantity::text FROM holdings WHERE user_id = $1 ORDER BY asset`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying holdings for user %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var asset, quantity string
		if err := rows.Scan(&asset, &quantity); err != nil {
			return nil, fmt.Errorf("error scanning holding row for user %s: %w", userID, err)
		}
		qty, err := decimal.NewFromString(quantity)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s quantity for user %s: %w", asset, userID, err)
		}
		portfolio.Tokens[asset] = qty
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating holding rows for user %s: %w", userID, rows.Err())
	}
	return portfolio, nil
}

// txAccount applies ledger operations inside the Update transaction. Every guarded
// mutation is a single conditional statement checked through RowsAffected.
type txAccount struct {
	tx     pgx.Tx
	userID uuid.UUID
}

func (a *txAccount) Balance(ctx context.Context) (decimal.Decimal, error) {
	var balance string
	if err := a.tx.QueryRow(ctx, `SELECT balance::text FROM users WHERE id = $1`, a.userID).Scan(&balance); err != nil {
		return decimal.Zero, fmt.Errorf("error reading balance for user %s: %w", a.userID, err)
	}
	return decimal.NewFromString(balance)
}

func (a *txAccount) Holding(ctx context.Context, asset string) (decimal.Decimal, error) {
	var quantity string
	err := a.tx.QueryRow(ctx, `SELECT quantity::text FROM holdings WHERE user_id = $1 AND asset = $2`, a.userID, asset).
		Scan(&quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("error reading %s holding for user %s: %w", asset, a.userID, err)
	}
	return decimal.NewFromString(quantity)
}

func (a *txAccount) Debit(ctx context.Context, amount decimal.Decimal) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	query := `UPDATE users SET balance = balance - $1::numeric
			  WHERE id = $2 AND balance >= $1::numeric`
	cmdTag, err := a.tx.Exec(ctx, query, amount.String(), a.userID)
	if err != nil {
		return fmt.Errorf("error debiting user %s: %w", a.userID, err)
	}
	if cmdTag.RowsAffected() != 1 {
		available, getErr := a.Balance(ctx)
		if getErr != nil {
			return fmt.Errorf("%w (balance check failed: %v)", models.ErrInsufficientFunds, getErr)
		}
		return fmt.Errorf("%w (available: %s, required: %s)", models.ErrInsufficientFunds, available, amount)
	}
	return nil
}

func (a *txAccount) Credit(ctx context.Context, amount decimal.Decimal) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	cmdTag, err := a.tx.Exec(ctx, `UPDATE users SET balance = balance + $1::numeric WHERE id = $2`, amount.String(), a.userID)
	if err != nil {
		return fmt.Errorf("error crediting user %s: %w", a.userID, err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, a.userID)
	}
	return nil
}

func (a *txAccount) AddHolding(ctx context.Context, asset string, quantity decimal.Decimal) error {
	if err := ledger.CheckAsset(asset); err != nil {
		return err
	}
	if err := ledger.CheckAmount(quantity); err != nil {
		return err
	}
	query := `INSERT INTO holdings (user_id, asset, quantity) VALUES ($1, $2, $3::numeric)
			  ON CONFLICT (user_id, asset) DO UPDATE
			  SET quantity = holdings.quantity + EXCLUDED.quantity, updated_at = NOW()`
	if _, err := a.tx.Exec(ctx, query, a.userID, asset, quantity.String()); err != nil {
		return fmt.Errorf("error adding %s holding for user %s: %w", asset, a.userID, err)
	}
	return a.touch(ctx)
}

func (a *txAccount) RemoveHolding(ctx context.Context, asset string, quantity decimal.Decimal) error {
	if err := ledger.CheckAsset(asset); err != nil {
		return err
	}
	if err := ledger.CheckAmount(quantity); err != nil {
		return err
	}
	query := `UPDATE holdings SET quantity = quantity - $1::numeric, updated_at = NOW()
			  WHERE user_id = $2 AND asset = $3 AND quantity >= $1::numeric`
	cmdTag, err := a.tx.Exec(ctx, query, quantity.String(), a.userID, asset)
	if err != nil {
		return fmt.Errorf("error removing %s holding for user %s: %w", asset, a.userID, err)
	}
	if cmdTag.RowsAffected() != 1 {
		held, getErr := a.Holding(ctx, asset)
		if getErr != nil {
			return fmt.Errorf("%w for %s (holding check failed: %v)", models.ErrInsufficientHoldings, asset, getErr)
		}
		return fmt.Errorf("%w for %s (held: %s, required: %s)", models.ErrInsufficientHoldings, asset, held, quantity)
	}
	return a.touch(ctx)
}

func (a *txAccount) SetBalance(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: balance must not be negative", models.ErrInvalidRequest)
	}
	cmdTag, err := a.tx.Exec(ctx, `UPDATE users SET balance = $1::numeric WHERE id = $2`, amount.String(), a.userID)
	if err != nil {
		return fmt.Errorf("error setting balance for user %s: %w", a.userID, err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, a.userID)
	}
	return nil
}

func (a *txAccount) ClearHoldings(ctx context.Context) error {
	if _, err := a.tx.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1`, a.userID); err != nil {
		return fmt.Errorf("error clearing holdings for user %s: %w", a.userID, err)
	}
	return a.touch(ctx)
}

func (a *txAccount) touch(ctx context.Context) error {
	if _, err := a.tx.Exec(ctx, `UPDATE portfolios SET updated_at = NOW() WHERE user_id = $1`, a.userID); err != nil {
		return fmt.Errorf("error touching portfolio for user %s: %w", a.userID, err)
	}
	return nil
}
