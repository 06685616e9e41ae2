package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/user/papertrade/backend/internal/middleware"
)

// Routes mounts the API under /api and, when a hub is configured, the price stream under /ws.
func (h *Handler) Routes(app *fiber.App) {
	if h.hub != nil {
		wsGroup := app.Group("/ws")
		wsGroup.Use("/", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		wsGroup.Get("/prices", websocket.New(h.PriceStream))
	}

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	api.Post("/login", h.Login)
	api.Post("/create-account", h.CreateAccount)
	api.Get("/check-session", middleware.Optional(), h.CheckSession)

	protected := middleware.Protected()
	api.Post("/buy", protected, h.Buy)
	api.Post("/sell", protected, h.Sell)
	api.Get("/portfolio", protected, h.GetPortfolio)
	api.Get("/reset", protected, h.Reset)
	api.Post("/set-balance", protected, h.SetBalance)
}
