package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/user/papertrade/backend/internal/models"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type validationError struct {
	err error
}

func (v *validationError) Error() string {
	var fields validator.ValidationErrors
	if !errors.As(v.err, &fields) {
		return v.err.Error()
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Field(), f.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func (v *validationError) Unwrap() error { return models.ErrInvalidRequest }

var errorKinds = []struct {
	err    error
	status int
	kind   string
}{
	{models.ErrUnauthorized, fiber.StatusUnauthorized, "unauthorized"},
	{models.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{models.ErrInsufficientFunds, fiber.StatusBadRequest, "insufficient_funds"},
	{models.ErrInsufficientHoldings, fiber.StatusBadRequest, "insufficient_holdings"},
	{models.ErrPriceUnavailable, fiber.StatusBadRequest, "price_unavailable"},
	{models.ErrInvalidOutcome, fiber.StatusBadRequest, "invalid_outcome"},
	{models.ErrAccountConflict, fiber.StatusBadRequest, "account_conflict"},
	{models.ErrInvalidRequest, fiber.StatusBadRequest, "invalid_request"},
}

// classify maps an engine error to its HTTP status and kind.
func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.kind
		}
	}
	return fiber.StatusInternalServerError, "internal"
}

// fail writes the error payload. Internal errors are logged and not echoed to the client.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status, kind := classify(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		h.log.WithField("path", c.Path()).Errorf("Request failed: %v", err)
		msg = "Internal server error"
	}
	return c.Status(status).JSON(ErrorResponse{Success: false, Error: kind, Message: msg})
}
