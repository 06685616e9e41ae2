package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/user/papertrade/backend/internal/models"
)

const uniqueViolation = "23505"

// CreateUser inserts a user and its empty portfolio in one transaction.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, startingBalance decimal.Decimal) (*models.User, error) {
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Balance:      startingBalance,
	}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		query := `INSERT INTO users (id, username, password_hash, balance) VALUES ($1, $2, $3, $4::numeric)
				  RETURNING created_at`
		if err := tx.QueryRow(ctx, query, user.ID, username, passwordHash, startingBalance.String()).
			Scan(&user.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", models.ErrAccountConflict, username)
			}
			return fmt.Errorf("error creating user %s: %w", username, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO portfolios (user_id) VALUES ($1)`, user.ID); err != nil {
			return fmt.Errorf("error creating portfolio for user %s: %w", user.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by their username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, balance::text, created_at FROM users WHERE username = $1`
	return s.scanUser(s.pool.QueryRow(ctx, query, username))
}

// GetUserByID retrieves a user by their ID.
func (s *Store) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `SELECT id, username, password_hash, balance::text, created_at FROM users WHERE id = $1`
	return s.scanUser(s.pool.QueryRow(ctx, query, userID))
}

func (s *Store) scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var balance string
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &balance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // User not found, return nil without error
		}
		return nil, err
	}
	if user.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("error parsing balance for user %s: %w", user.ID, err)
	}
	return user, nil
}
