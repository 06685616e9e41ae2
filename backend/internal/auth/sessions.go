package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/user/papertrade/backend/internal/models"
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 24 * time.Hour

const issuer = "papertrade"

// SessionRepository persists session records.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	// GetSession returns nil, nil when the id is unknown.
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Claims is the payload of a session token. ID (jti) names the stored session.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}

// SessionStore issues and validates bearer tokens. A token is a signed reference to a
// stored session; both the signature and the stored record must be valid.
type SessionStore struct {
	repo   SessionRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	log    *logrus.Entry
}

// SessionOption customizes a SessionStore.
type SessionOption func(*SessionStore)

// WithTTL overrides DefaultSessionTTL.
func WithTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) { s.ttl = ttl }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) { s.now = now }
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(log *logrus.Entry) SessionOption {
	return func(s *SessionStore) { s.log = log }
}

// NewSessionStore creates a store signing tokens with secret.
func NewSessionStore(repo SessionRepository, secret []byte, opts ...SessionOption) (*SessionStore, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session secret must not be empty")
	}
	s := &SessionStore{
		repo:   repo,
		secret: secret,
		ttl:    DefaultSessionTTL,
		now:    time.Now,
		log:    logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a session for the user and returns its token and expiry.
func (s *SessionStore) Issue(ctx context.Context, user *models.User) (string, time.Time, error) {
	now := s.now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		// NumericDate keeps whole seconds; the record must expire with the token
		ExpiresAt: now.Add(s.ttl).Truncate(jwt.TimePrecision),
		CreatedAt: now,
	}

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing session token: %w", err)
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return "", time.Time{}, fmt.Errorf("error storing session for user %s: %w", user.ID, err)
	}
	return token, session.ExpiresAt, nil
}

// Validate returns the session behind token. Unknown, forged and expired tokens all
// yield models.ErrUnauthorized.
func (s *SessionStore) Validate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, models.ErrUnauthorized
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	session, err := s.repo.GetSession(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("error looking up session: %w", err)
	}
	if session == nil || session.UserID != claims.UserID || !session.ExpiresAt.After(s.now()) {
		return nil, models.ErrUnauthorized
	}
	return session, nil
}

// Purge deletes expired sessions and reports how many were removed.
func (s *SessionStore) Purge(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}

// RunSweeper purges expired sessions every interval until ctx is done.
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				s.log.Warnf("Session sweep failed: %v", err)
				continue
			}
			if n > 0 {
				s.log.Infof("Purged %d expired sessions", n)
			}
		}
	}
}
