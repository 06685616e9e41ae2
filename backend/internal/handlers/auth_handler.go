package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/user/papertrade/backend/internal/middleware"
)

// CredentialsRequest is the body of create-account.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"` // bcrypt input limit
}

// LoginRequest carries no length limits so any wrong credentials fail with 401.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AccountResponse is returned by create-account.
type AccountResponse struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

// CreateAccount handles user registration.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	req := new(CredentialsRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	user, err := h.engine.CreateAccount(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(AccountResponse{UserID: user.ID, Username: user.Username})
}

// Login handles user authentication.
func (h *Handler) Login(c *fiber.Ctx) error {
	req := new(LoginRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	res, err := h.engine.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(LoginResponse{
		Token:     res.Token,
		UserID:    res.User.ID,
		Username:  res.User.Username,
		ExpiresAt: res.ExpiresAt,
	})
}

// CheckSession reports whether the bearer token (if any) is a live session. Always 200.
func (h *Handler) CheckSession(c *fiber.Ctx) error {
	valid := h.engine.CheckSession(c.UserContext(), middleware.Token(c))
	return c.JSON(fiber.Map{"valid": valid})
}
