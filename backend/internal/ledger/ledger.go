// Package ledger defines the account ledger contract shared by the Postgres and
// in-memory stores, plus Book, the in-memory account state used by the latter.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/user/papertrade/backend/internal/models"
)

// Account exposes the mutations allowed on one user's balance and holdings while
// exclusive access is held. Every mutation either applies fully or returns an error
// and leaves the account untouched.
type Account interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	Holding(ctx context.Context, asset string) (decimal.Decimal, error)

	// Debit fails with models.ErrInsufficientFunds if the balance would go negative.
	Debit(ctx context.Context, amount decimal.Decimal) error
	Credit(ctx context.Context, amount decimal.Decimal) error

	AddHolding(ctx context.Context, asset string, quantity decimal.Decimal) error
	// RemoveHolding fails with models.ErrInsufficientHoldings if the quantity would go negative.
	RemoveHolding(ctx context.Context, asset string, quantity decimal.Decimal) error

	SetBalance(ctx context.Context, amount decimal.Decimal) error
	ClearHoldings(ctx context.Context) error
}

// Ledger serializes access to each user's account.
type Ledger interface {
	// Update runs fn with exclusive access to the user's account. If fn returns an
	// error nothing it did is kept; otherwise all of it is committed together.
	Update(ctx context.Context, userID uuid.UUID, fn func(Account) error) error
	// Snapshot returns the current balance and holdings. The result may be stale as
	// soon as it is returned.
	Snapshot(ctx context.Context, userID uuid.UUID) (*models.Portfolio, error)
}

// CheckAmount rejects non-positive mutation amounts.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", models.ErrInvalidRequest, amount)
	}
	return nil
}

// CheckAsset rejects an empty asset identifier.
func CheckAsset(asset string) error {
	if asset == "" {
		return fmt.Errorf("%w: asset is required", models.ErrInvalidRequest)
	}
	return nil
}
