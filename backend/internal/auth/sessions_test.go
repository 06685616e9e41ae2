package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/papertrade/backend/internal/memstore"
	"github.com/user/papertrade/backend/internal/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*SessionStore, *memstore.Store, *clock) {
	t.Helper()
	return newStoreAt(t, time.Unix(1_760_000_000, 0))
}

func newStoreAt(t *testing.T, start time.Time) (*SessionStore, *memstore.Store, *clock) {
	t.Helper()
	clk := &clock{now: start}
	repo := memstore.New()
	s, err := NewSessionStore(repo, []byte("test-secret"), WithClock(clk.Now))
	require.NoError(t, err)
	return s, repo, clk
}

func TestValidate_SubSecondIssueTime(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newStoreAt(t, time.Unix(1_760_000_000, int64(900*time.Millisecond)))

	token, expiry, err := s.Issue(ctx, testUser())
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1_760_000_000+24*60*60, 0), expiry)

	clk.Advance(24*time.Hour - time.Second)
	require.True(t, expiry.After(clk.Now()))
	_, err = s.Validate(ctx, token)
	require.NoError(t, err, "valid while the reported expiry is in the future")

	clk.Advance(100 * time.Millisecond)
	assert.False(t, expiry.After(clk.Now()))
	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Username: "testtrader"}
}

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newStore(t)
	user := testUser()

	token, expiry, err := s.Issue(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(24*time.Hour), expiry)

	session, err := s.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, "testtrader", session.Username)
}

func TestValidate_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newStore(t)

	token, _, err := s.Issue(ctx, testUser())
	require.NoError(t, err)

	clk.Advance(24*time.Hour - time.Second)
	_, err = s.Validate(ctx, token)
	require.NoError(t, err, "valid just before expiry")

	clk.Advance(time.Second)
	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, models.ErrUnauthorized, "invalid at expiry")
}

func TestValidate_RejectsUnknownAndForged(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := s.Validate(ctx, token)
		assert.ErrorIs(t, err, models.ErrUnauthorized, token)
	}

	// well-signed token for a session that was never stored
	other, err := NewSessionStore(memstore.New(), []byte("test-secret"))
	require.NoError(t, err)
	orphan, _, err := other.Issue(ctx, testUser())
	require.NoError(t, err)
	_, err = s.Validate(ctx, orphan)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	// token signed with a different secret
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{ID: "x", Issuer: issuer},
	})
	signed, err := forged.SignedString([]byte("wrong"))
	require.NoError(t, err)
	_, err = s.Validate(ctx, signed)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestValidate_TamperedToken(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)
	token, _, err := s.Issue(ctx, testUser())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	parts[2] = strings.Repeat("A", len(parts[2]))
	_, err = s.Validate(ctx, strings.Join(parts, "."))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestMultipleSessionsPerUser(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)
	user := testUser()

	a, _, err := s.Issue(ctx, user)
	require.NoError(t, err)
	b, _, err := s.Issue(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	for _, token := range []string{a, b} {
		_, err := s.Validate(ctx, token)
		assert.NoError(t, err)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s, repo, clk := newStore(t)

	old, _, err := s.Issue(ctx, testUser())
	require.NoError(t, err)
	clk.Advance(12 * time.Hour)
	fresh, _, err := s.Issue(ctx, testUser())
	require.NoError(t, err)

	clk.Advance(12 * time.Hour)
	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.Validate(ctx, old)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = s.Validate(ctx, fresh)
	assert.NoError(t, err)

	n, err = repo.DeleteExpiredSessions(ctx, clk.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewSessionStore_RequiresSecret(t *testing.T) {
	_, err := NewSessionStore(memstore.New(), nil)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("testpassword123")
	require.NoError(t, err)
	assert.NotEqual(t, "testpassword123", hash)
	assert.True(t, CheckPasswordHash("testpassword123", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
	assert.False(t, CheckPasswordHash("testpassword123", ""))

	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}
