// Package middleware provides authentication, logging, and rate limiting for
// the local surface.
package middleware

import (
	"strings"

	"photogram/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthProvider exposes the current authentication state. Implemented by
// session.Manager.
type AuthProvider interface {
	State() session.AuthState
}

// AuthRequired enforces authentication on protected routes: the caller's
// bearer token must carry the subject of the currently signed-in identity.
// Signature verification is the backend's job; the local surface only checks
// that the UI presents the session it was handed.
func AuthRequired(auth AuthProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := auth.State()
		if state.Status != session.StatusSignedIn {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not signed in",
			})
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(parts[1], claims); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token structure - missing subject",
			})
		}
		if sub != state.UserID {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token does not match the active session",
			})
		}

		c.Locals("userID", state.UserID)
		return c.Next()
	}
}

// WebSocketAuthRequired validates the token from the query string, since
// browser WebSocket clients cannot set an Authorization header.
func WebSocketAuthRequired(auth AuthProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token query parameter required",
			})
		}

		state := auth.State()
		if state.Status != session.StatusSignedIn {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not signed in",
			})
		}

		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}
		sub, err := claims.GetSubject()
		if err != nil || sub != state.UserID {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token does not match the active session",
			})
		}

		c.Locals("userID", state.UserID)
		return c.Next()
	}
}
