package server

import (
	"photogram/internal/models"
	"photogram/internal/session"

	"github.com/gofiber/fiber/v2"
)

// SignUp handles POST /api/auth/signup.
func (s *Server) SignUp(c *fiber.Ctx) error {
	var req session.SignUpInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	sess, err := s.auth.SignUp(c.Context(), req)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	s.beginSession(sess)

	state := s.auth.State()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user_id": state.UserID,
		"token":   state.Token,
	})
}

// SignIn handles POST /api/auth/signin.
func (s *Server) SignIn(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	sess, err := s.auth.SignIn(c.Context(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	s.beginSession(sess)

	state := s.auth.State()
	return c.JSON(fiber.Map{
		"user_id": state.UserID,
		"token":   state.Token,
	})
}

// SignOut handles POST /api/auth/signout.
func (s *Server) SignOut(c *fiber.Ctx) error {
	s.endSession(c.Context())
	s.auth.SignOut(c.Context())
	return c.SendStatus(fiber.StatusNoContent)
}

// AuthState handles GET /api/auth/state: the authentication-state change
// stream's current value, polled by the UI on startup.
func (s *Server) AuthState(c *fiber.Ctx) error {
	state := s.auth.State()
	return c.JSON(fiber.Map{
		"status":  string(state.Status),
		"user_id": state.UserID,
	})
}

// UsernameAvailable handles GET /api/auth/username-available?username=...,
// backing the sign-up form's inline username validation.
func (s *Server) UsernameAvailable(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("username query parameter is required"))
	}

	taken, err := s.gw.UsernameTaken(c.Context(), username)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"available": !taken})
}
