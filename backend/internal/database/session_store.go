package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/user/papertrade/backend/internal/models"
)

// CreateSession inserts a session record.
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	query := `INSERT INTO sessions (id, user_id, username, expires_at, created_at)
			  VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, query, session.ID, session.UserID, session.Username, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating session for user %s: %w", session.UserID, err)
	}
	return nil
}

// GetSession returns nil, nil if no session has this id. Expired rows are returned
// as-is; the caller compares ExpiresAt.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	query := `SELECT id, user_id, username, expires_at, created_at FROM sessions WHERE id = $1`

	err := s.pool.QueryRow(ctx, query, id).
		Scan(&session.ID, &session.UserID, &session.Username, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting session: %w", err)
	}
	return session, nil
}

// DeleteExpiredSessions removes sessions that expired at or before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired sessions: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
