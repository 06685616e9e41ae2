package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/user/papertrade/backend/internal/middleware"
	"github.com/user/papertrade/backend/internal/models"
)

// PortfolioResponse is the SOL balance plus every non-zero token holding.
type PortfolioResponse struct {
	SolBalance float64            `json:"solBalance"`
	Tokens     map[string]float64 `json:"tokens"`
}

// SetBalanceRequest overwrites the SOL balance.
type SetBalanceRequest struct {
	Amount float64 `json:"amount" validate:"gte=1"`
}

func portfolioResponse(p *models.Portfolio) PortfolioResponse {
	tokens := make(map[string]float64, len(p.Tokens))
	for asset, qty := range p.Tokens {
		tokens[asset] = qty.InexactFloat64()
	}
	return PortfolioResponse{SolBalance: p.Balance.InexactFloat64(), Tokens: tokens}
}

// GetPortfolio returns the caller's balance and holdings.
func (h *Handler) GetPortfolio(c *fiber.Ctx) error {
	p, err := h.engine.Portfolio(c.UserContext(), middleware.Token(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(portfolioResponse(p))
}

// Reset restores the starting balance and drops all holdings.
func (h *Handler) Reset(c *fiber.Ctx) error {
	p, err := h.engine.Reset(c.UserContext(), middleware.Token(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(portfolioResponse(p))
}

// SetBalance overwrites the SOL balance without touching holdings.
func (h *Handler) SetBalance(c *fiber.Ctx) error {
	req := new(SetBalanceRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	balance, err := h.engine.SetBalance(c.UserContext(), middleware.Token(c), decimal.NewFromFloat(req.Amount))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"newBalance": balance.InexactFloat64(),
		"message":    "Balance updated to " + balance.String() + " SOL",
	})
}
