package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/user/papertrade/backend/internal/models"
	"github.com/user/papertrade/backend/internal/trading"
	ws "github.com/user/papertrade/backend/internal/websocket"
)

// Handler serves the HTTP API on top of the trading engine.
type Handler struct {
	engine   *trading.Engine
	hub      *ws.Hub
	validate *validator.Validate
	log      *logrus.Entry
}

// New creates a Handler. hub may be nil when the price stream is disabled.
func New(engine *trading.Engine, hub *ws.Hub, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		engine:   engine,
		hub:      hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// bind parses the JSON body into req and validates its struct tags.
func (h *Handler) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return models.ErrInvalidRequest
	}
	if err := h.validate.Struct(req); err != nil {
		return &validationError{err: err}
	}
	return nil
}
