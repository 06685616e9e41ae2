package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents a user account
type User struct {
	ID           uuid.UUID       `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // bcrypt hash, never serialized
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Session is a persisted login. The bearer token handed to clients references it by ID.
type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Portfolio is a point-in-time view of a user's SOL balance and token holdings.
type Portfolio struct {
	UserID  uuid.UUID                  `json:"user_id"`
	Balance decimal.Decimal            `json:"balance"`
	Tokens  map[string]decimal.Decimal `json:"tokens"` // Key: token mint
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeOutcome is the computed result of a single buy or sell. It is never persisted.
type TradeOutcome struct {
	Side           Side            `json:"side"`
	AssetID        string          `json:"asset_id"`
	ReferencePrice decimal.Decimal `json:"reference_price"` // Quoted price in SOL per token
	EffectivePrice decimal.Decimal `json:"effective_price"` // Price after slippage
	// AssetAmount is tokens received on a buy, tokens given up on a sell.
	AssetAmount decimal.Decimal `json:"asset_amount"`
	// SettlementAmount is SOL spent on a buy (fee included), net SOL received on a sell.
	SettlementAmount decimal.Decimal `json:"settlement_amount"`
	FeeAmount        decimal.Decimal `json:"fee_amount"`
	SlippageCost     decimal.Decimal `json:"slippage_cost"` // SOL value lost to slippage
}
