// Package trade converts a reference price and slippage/fee parameters into trade outcomes.
// Everything here is pure; callers decide whether an outcome is acceptable.
package trade

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/user/papertrade/backend/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Default parameters applied when the caller leaves slippage or fee unset.
var (
	DefaultSlippagePercent = decimal.NewFromInt(2)
	DefaultFeePercent      = decimal.RequireFromString("0.1")
)

// Params holds the percentage adjustments applied to a quote.
type Params struct {
	SlippagePercent decimal.Decimal
	FeePercent      decimal.Decimal
}

// DefaultParams returns the 2% slippage / 0.1% fee defaults.
func DefaultParams() Params {
	return Params{SlippagePercent: DefaultSlippagePercent, FeePercent: DefaultFeePercent}
}

func (p Params) validate() error {
	if p.SlippagePercent.IsNegative() {
		return fmt.Errorf("%w: slippage must not be negative", models.ErrInvalidRequest)
	}
	if p.FeePercent.IsNegative() {
		return fmt.Errorf("%w: fee must not be negative", models.ErrInvalidRequest)
	}
	return nil
}

func checkPrice(referencePrice decimal.Decimal) error {
	if !referencePrice.IsPositive() {
		return fmt.Errorf("%w: reference price %s is not positive", models.ErrPriceUnavailable, referencePrice)
	}
	return nil
}

// Buy computes the outcome of spending solIn SOL on a token quoted at referencePrice.
// Slippage raises the price paid; the fee is taken from solIn before conversion.
func Buy(referencePrice, solIn decimal.Decimal, p Params) (models.TradeOutcome, error) {
	if err := checkPrice(referencePrice); err != nil {
		return models.TradeOutcome{}, err
	}
	if err := p.validate(); err != nil {
		return models.TradeOutcome{}, err
	}

	effectivePrice := referencePrice.Mul(decimal.NewFromInt(1).Add(p.SlippagePercent.Div(hundred)))
	feeAmount := solIn.Mul(p.FeePercent).Div(hundred)
	netIn := solIn.Sub(feeAmount)
	tokensOut := netIn.Div(effectivePrice)

	return models.TradeOutcome{
		Side:             models.SideBuy,
		ReferencePrice:   referencePrice,
		EffectivePrice:   effectivePrice,
		AssetAmount:      tokensOut,
		SettlementAmount: solIn,
		FeeAmount:        feeAmount,
		SlippageCost:     netIn.Sub(tokensOut.Mul(referencePrice)),
	}, nil
}

// Sell computes the outcome of selling tokensIn tokens quoted at referencePrice.
// Slippage lowers the price received; the fee is taken from the gross proceeds.
func Sell(referencePrice, tokensIn decimal.Decimal, p Params) (models.TradeOutcome, error) {
	if err := checkPrice(referencePrice); err != nil {
		return models.TradeOutcome{}, err
	}
	if err := p.validate(); err != nil {
		return models.TradeOutcome{}, err
	}

	effectivePrice := referencePrice.Mul(decimal.NewFromInt(1).Sub(p.SlippagePercent.Div(hundred)))
	grossSol := tokensIn.Mul(effectivePrice)
	feeAmount := grossSol.Mul(p.FeePercent).Div(hundred)

	return models.TradeOutcome{
		Side:             models.SideSell,
		ReferencePrice:   referencePrice,
		EffectivePrice:   effectivePrice,
		AssetAmount:      tokensIn,
		SettlementAmount: grossSol.Sub(feeAmount),
		FeeAmount:        feeAmount,
		SlippageCost:     tokensIn.Mul(referencePrice).Sub(grossSol),
	}, nil
}
