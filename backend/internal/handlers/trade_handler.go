package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/user/papertrade/backend/internal/middleware"
	"github.com/user/papertrade/backend/internal/models"
	"github.com/user/papertrade/backend/internal/trading"
)

// BuyRequest spends SolAmount on TokenMint. Slippage and Fee are percentages.
type BuyRequest struct {
	TokenMint string   `json:"tokenMint" validate:"required"`
	SolAmount float64  `json:"solAmount" validate:"gt=0"`
	Slippage  *float64 `json:"slippage" validate:"omitempty,gte=0"`
	Fee       *float64 `json:"fee" validate:"omitempty,gte=0"`
}

// SellRequest sells TokenAmount of TokenMint for SOL.
type SellRequest struct {
	TokenMint   string   `json:"tokenMint" validate:"required"`
	TokenAmount float64  `json:"tokenAmount" validate:"gt=0"`
	Slippage    *float64 `json:"slippage" validate:"omitempty,gte=0"`
	Fee         *float64 `json:"fee" validate:"omitempty,gte=0"`
}

// Fees breaks down the cost of a trade in SOL.
type Fees struct {
	Protocol float64 `json:"protocol"`
	Slippage float64 `json:"slippage"`
}

type BuyResponse struct {
	Success        bool    `json:"success"`
	TokensReceived float64 `json:"tokensReceived"`
	SolSpent       float64 `json:"solSpent"`
	EffectivePrice float64 `json:"effectivePrice"`
	Fees           Fees    `json:"fees"`
}

type SellResponse struct {
	Success        bool    `json:"success"`
	SolReceived    float64 `json:"solReceived"`
	TokensSold     float64 `json:"tokensSold"`
	EffectivePrice float64 `json:"effectivePrice"`
	Fees           Fees    `json:"fees"`
}

func optionalDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}

func fees(o *models.TradeOutcome) Fees {
	return Fees{Protocol: o.FeeAmount.InexactFloat64(), Slippage: o.SlippageCost.InexactFloat64()}
}

// Buy handles a simulated market buy.
func (h *Handler) Buy(c *fiber.Ctx) error {
	req := new(BuyRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	out, err := h.engine.Buy(c.UserContext(), middleware.Token(c), trading.TradeRequest{
		AssetID:  req.TokenMint,
		Amount:   decimal.NewFromFloat(req.SolAmount),
		Slippage: optionalDecimal(req.Slippage),
		Fee:      optionalDecimal(req.Fee),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(BuyResponse{
		Success:        true,
		TokensReceived: out.AssetAmount.InexactFloat64(),
		SolSpent:       out.SettlementAmount.InexactFloat64(),
		EffectivePrice: out.EffectivePrice.InexactFloat64(),
		Fees:           fees(out),
	})
}

// Sell handles a simulated market sell.
func (h *Handler) Sell(c *fiber.Ctx) error {
	req := new(SellRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	out, err := h.engine.Sell(c.UserContext(), middleware.Token(c), trading.TradeRequest{
		AssetID:  req.TokenMint,
		Amount:   decimal.NewFromFloat(req.TokenAmount),
		Slippage: optionalDecimal(req.Slippage),
		Fee:      optionalDecimal(req.Fee),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(SellResponse{
		Success:        true,
		SolReceived:    out.SettlementAmount.InexactFloat64(),
		TokensSold:     out.AssetAmount.InexactFloat64(),
		EffectivePrice: out.EffectivePrice.InexactFloat64(),
		Fees:           fees(out),
	})
}
