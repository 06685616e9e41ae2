// Package memstore is an in-process implementation of the user, session and ledger
// stores. State is lost on restart; it backs local runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/user/papertrade/backend/internal/ledger"
	"github.com/user/papertrade/backend/internal/models"
)

type account struct {
	mu   sync.Mutex // Guards book
	user models.User
	book *ledger.Book
}

// Store holds users, sessions and accounts in maps. Each account carries its own
// mutex so trades for different users never wait on each other.
type Store struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]*account
	byUsername map[string]uuid.UUID
	sessions   map[string]*models.Session
}

var _ ledger.Ledger = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:   make(map[uuid.UUID]*account),
		byUsername: make(map[string]uuid.UUID),
		sessions:   make(map[string]*models.Session),
	}
}

// Close is a no-op kept for parity with the Postgres store.
func (s *Store) Close() {}

// CreateUser registers a user with its portfolio in one step.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, startingBalance decimal.Decimal) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[username]; taken {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountConflict, username)
	}
	user := models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Balance:      startingBalance,
		CreatedAt:    time.Now(),
	}
	s.accounts[user.ID] = &account{user: user, book: ledger.NewBook(startingBalance)}
	s.byUsername[username] = user.ID

	out := user
	return &out, nil
}

// GetUserByUsername returns nil, nil when no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	id, ok := s.byUsername[username]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID returns nil, nil when no such user exists.
func (s *Store) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	acct := s.account(userID)
	if acct == nil {
		return nil, nil
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	user := acct.user
	user.Balance = acct.book.Portfolio(userID).Balance
	return &user, nil
}

func (s *Store) account(userID uuid.UUID) *account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[userID]
}

// Update applies fn to a copy of the account and swaps it in only if fn succeeds.
func (s *Store) Update(ctx context.Context, userID uuid.UUID, fn func(ledger.Account) error) error {
	acct := s.account(userID)
	if acct == nil {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := acct.book.Clone()
	if err := fn(staged); err != nil {
		return err
	}
	acct.book = staged
	return nil
}

// Snapshot returns a copy of the account's balance and holdings.
func (s *Store) Snapshot(ctx context.Context, userID uuid.UUID) (*models.Portfolio, error) {
	acct := s.account(userID)
	if acct == nil {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.book.Portfolio(userID), nil
}

// CreateSession stores a session record. IDs must be unique.
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

// GetSession returns nil, nil for unknown IDs. Expiry is checked by the caller.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	out := *session
	return &out, nil
}

// DeleteExpiredSessions removes sessions whose expiry is at or before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
