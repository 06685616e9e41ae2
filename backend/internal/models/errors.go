package models

import "errors"

// Error kinds surfaced by the trading engine. Callers match them with errors.Is;
// lower layers wrap them with detail.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrInvalidOutcome       = errors.New("invalid trade outcome")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrAccountConflict      = errors.New("username already taken")
	ErrNotFound             = errors.New("not found")
)
