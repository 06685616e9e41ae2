package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/user/papertrade/backend/internal/models"
)

// Book is an in-memory account. It is not safe for concurrent use; owners guard it
// and mutate a Clone so a failed Update can be discarded.
type Book struct {
	balance  decimal.Decimal
	holdings map[string]decimal.Decimal
}

var _ Account = (*Book)(nil)

// NewBook creates a book with the given balance and no holdings.
func NewBook(balance decimal.Decimal) *Book {
	return &Book{balance: balance, holdings: make(map[string]decimal.Decimal)}
}

// Clone returns an independent copy.
func (b *Book) Clone() *Book {
	holdings := make(map[string]decimal.Decimal, len(b.holdings))
	for k, v := range b.holdings {
		holdings[k] = v
	}
	return &Book{balance: b.balance, holdings: holdings}
}

// Portfolio converts the book into a snapshot for userID.
func (b *Book) Portfolio(userID uuid.UUID) *models.Portfolio {
	return &models.Portfolio{UserID: userID, Balance: b.balance, Tokens: b.Clone().holdings}
}

func (b *Book) Balance(_ context.Context) (decimal.Decimal, error) {
	return b.balance, nil
}

func (b *Book) Holding(_ context.Context, asset string) (decimal.Decimal, error) {
	return b.holdings[asset], nil
}

func (b *Book) Debit(_ context.Context, amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if b.balance.LessThan(amount) {
		return fmt.Errorf("%w (available: %s, required: %s)", models.ErrInsufficientFunds, b.balance, amount)
	}
	b.balance = b.balance.Sub(amount)
	return nil
}

func (b *Book) Credit(_ context.Context, amount decimal.Decimal) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	b.balance = b.balance.Add(amount)
	return nil
}

func (b *Book) AddHolding(_ context.Context, asset string, quantity decimal.Decimal) error {
	if err := CheckAsset(asset); err != nil {
		return err
	}
	if err := CheckAmount(quantity); err != nil {
		return err
	}
	b.holdings[asset] = b.holdings[asset].Add(quantity)
	return nil
}

func (b *Book) RemoveHolding(_ context.Context, asset string, quantity decimal.Decimal) error {
	if err := CheckAsset(asset); err != nil {
		return err
	}
	if err := CheckAmount(quantity); err != nil {
		return err
	}
	held := b.holdings[asset]
	if held.LessThan(quantity) {
		return fmt.Errorf("%w for %s (held: %s, required: %s)", models.ErrInsufficientHoldings, asset, held, quantity)
	}
	b.holdings[asset] = held.Sub(quantity)
	return nil
}

func (b *Book) SetBalance(_ context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: balance must not be negative", models.ErrInvalidRequest)
	}
	b.balance = amount
	return nil
}

func (b *Book) ClearHoldings(_ context.Context) error {
	b.holdings = make(map[string]decimal.Decimal)
	return nil
}
