package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// TokenKey is the fiber.Locals key holding the bearer token.
const TokenKey = "token"

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", false
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// Protected rejects requests without a bearer token. Session validity is checked downstream.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "unauthorized",
				"message": "Missing or invalid authorization header",
			})
		}
		c.Locals(TokenKey, token)
		return c.Next()
	}
}

// Optional stores the bearer token when one is present.
func Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := BearerToken(c); ok {
			c.Locals(TokenKey, token)
		}
		return c.Next()
	}
}

// Token returns the token stored by Protected or Optional.
func Token(c *fiber.Ctx) string {
	token, _ := c.Locals(TokenKey).(string)
	return token
}
