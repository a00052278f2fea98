package server

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"photogram/internal/gateway"
	"photogram/internal/models"
	"photogram/internal/uploader"
)

const suggestionLimit = 20

// GetSession handles GET /api/session: the signed-in identity as derived
// from the latest live snapshot.
func (s *Server) GetSession(c *fiber.Ctx) error {
	sess, paginator, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	return c.JSON(fiber.Map{
		"user_id":    sess.UserID(),
		"profile":    sess.Profile(),
		"feed_ids":   sess.FeedIDs(),
		"feed_state": string(paginator.State()),
	})
}

// GetProfile handles GET /api/users/:username.
func (s *Server) GetProfile(c *fiber.Ctx) error {
	if _, _, err := s.currentSession(); err != nil {
		return models.RespondWithError(c, 0, err)
	}

	profile, err := s.gw.FetchProfile(c.Context(), c.Params("username"))
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(profile)
}

// SearchUsers handles GET /api/users/search?q=...
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	if _, _, err := s.currentSession(); err != nil {
		return models.RespondWithError(c, 0, err)
	}

	query := c.Query("q")
	if query == "" {
		return c.JSON(fiber.Map{"users": []models.User{}})
	}

	users, err := s.gw.SearchUsers(c.Context(), query)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

// SuggestUsers handles GET /api/users/suggestions: the viewer's followers
// plus recently created accounts, minus anyone already followed.
func (s *Server) SuggestUsers(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	users, err := s.gw.SuggestUsers(c.Context(), suggestionLimit,
		sess.FollowersIDs(), time.Now().AddDate(0, 0, -7))
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	// Already-followed accounts are filtered locally so a fresh optimistic
	// follow drops out of the list immediately.
	filtered := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID == sess.UserID() || sess.Follows(u.ID) {
			continue
		}
		filtered = append(filtered, u)
	}
	return c.JSON(fiber.Map{"users": filtered})
}

// Follow handles POST /api/users/:userId/follow. The relationship is applied
// to the session optimistically; the identity subscription's next snapshot is
// authoritative either way.
func (s *Server) Follow(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	userID := c.Params("userId")
	if userID == sess.UserID() {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Cannot follow yourself"))
	}

	sess.OptimisticFollow(models.User{ID: userID})
	if err := s.gw.Follow(c.Context(), userID, sess.UserID()); err != nil {
		sess.OptimisticUnfollow(userID)
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"following": true})
}

// Unfollow handles DELETE /api/users/:userId/follow.
func (s *Server) Unfollow(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	userID := c.Params("userId")

	sess.OptimisticUnfollow(userID)
	if err := s.gw.Unfollow(c.Context(), userID, sess.UserID()); err != nil {
		sess.OptimisticFollow(models.User{ID: userID})
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"following": false})
}

// EditProfile handles PUT /api/profile: the mutable profile fields.
func (s *Server) EditProfile(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}

	var req struct {
		Name        string `json:"name"`
		Username    string `json:"username"`
		Bio         string `json:"bio"`
		Email       string `json:"email"`
		Website     string `json:"website"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.gw.UpdateUser(c.Context(), gateway.EditUserInput{
		ID:          sess.UserID(),
		Name:        req.Name,
		Username:    req.Username,
		Bio:         req.Bio,
		Email:       req.Email,
		Website:     req.Website,
		PhoneNumber: req.PhoneNumber,
	}); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// EditAvatar handles PUT /api/profile/avatar (multipart).
func (s *Server) EditAvatar(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("avatar file is required"))
	}
	file, err := fileHeader.Open()
	if err != nil {
		return models.RespondWithError(c, 0, models.NewInternalError(err))
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return models.RespondWithError(c, 0, models.NewInternalError(err))
	}

	imageURL, err := s.uploader.Upload(c.Context(), uploader.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	if err := s.gw.UpdateAvatar(c.Context(), sess.UserID(), imageURL); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"profile_image": imageURL})
}
