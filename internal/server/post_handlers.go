package server

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"photogram/internal/models"
	"photogram/internal/uploader"
)

// GetPost handles GET /api/posts/:postId. The first request for a post also
// starts its live subscription so comment and like counts stay current while
// the detail view is open.
func (s *Server) GetPost(c *fiber.Ctx) error {
	if _, _, err := s.currentSession(); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	postID := c.Params("postId")

	post, _, ok := s.cache.Post(postID)
	if !ok {
		var err error
		post, err = s.gw.FetchPost(c.Context(), postID)
		if err != nil {
			return models.RespondWithError(c, 0, err)
		}
	}
	s.ensurePostLive(postID)

	return c.JSON(post)
}

// GetMorePostsFromUser handles GET /api/posts/:postId/more-from-user:
// the "more from this account" strip under a post detail view, excluding
// the post being viewed.
func (s *Server) GetMorePostsFromUser(c *fiber.Ctx) error {
	if _, _, err := s.currentSession(); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	postID := c.Params("postId")

	post, _, ok := s.cache.Post(postID)
	if !ok {
		var err error
		post, err = s.gw.FetchPost(c.Context(), postID)
		if err != nil {
			return models.RespondWithError(c, 0, err)
		}
	}

	posts, err := s.gw.FetchMorePostsFromUser(c.Context(), post.User.ID, postID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"posts": posts})
}

// GetExplore handles GET /api/explore: recent posts from accounts the viewer
// does not follow.
func (s *Server) GetExplore(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	posts, err := s.gw.FetchExplore(c.Context(), sess.FeedIDs())
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"posts": posts})
}

// CreatePost handles POST /api/posts (multipart): the media file is
// preprocessed and uploaded, then the post document is created with the
// hosted URL and merged into the viewer's feed.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	sess, paginator, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}

	fileHeader, err := c.FormFile("media")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("media file is required"))
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

	mediaURL, err := s.uploader.Upload(c.Context(), uploader.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	postID, err := s.gw.InsertPost(c.Context(), sess.UserID(), mediaURL,
		c.FormValue("caption"), c.FormValue("location"))
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	post, err := s.gw.FetchPost(c.Context(), postID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	paginator.MergeLive(post)

	return c.Status(fiber.StatusCreated).JSON(post)
}

// DeletePost handles DELETE /api/posts/:postId. Only the author may delete.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	postID := c.Params("postId")

	post, _, ok := s.cache.Post(postID)
	if !ok {
		post, err = s.gw.FetchPost(c.Context(), postID)
		if err != nil {
			return models.RespondWithError(c, 0, err)
		}
	}
	if post.User.ID != sess.UserID() {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewUnauthorizedError("Only the author can delete a post"))
	}

	if err := s.gw.RemovePost(c.Context(), postID); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	s.stopPostLive(postID)

	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLike handles POST /api/posts/:postId/like. The response carries the
// optimistic state; confirmation or rollback happens asynchronously.
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	postID := c.Params("postId")

	post, err := s.resolvePost(c, postID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	result, err := s.reconciler.ToggleLike(c.Context(), postID, sess.UserID(), post.User.ID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"liked": result.Active, "likes_count": result.Count})
}

// ToggleSave handles POST /api/posts/:postId/save.
func (s *Server) ToggleSave(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	postID := c.Params("postId")

	if _, err := s.resolvePost(c, postID); err != nil {
		return models.RespondWithError(c, 0, err)
	}

	result, err := s.reconciler.ToggleSave(c.Context(), postID, sess.UserID())
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(fiber.Map{"saved": result.Active})
}

// AddComment handles POST /api/posts/:postId/comments. The returned comment
// carries a provisional id until the remote write confirms.
func (s *Server) AddComment(c *fiber.Ctx) error {
	sess, _, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	if err := requireIdentity(sess); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	postID := c.Params("postId")

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.resolvePost(c, postID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	profile := sess.Profile()
	if profile == nil {
		return models.RespondWithError(c, 0,
			models.NewUnauthorizedError("Session profile not yet available"))
	}

	comment, err := s.reconciler.AddComment(c.Context(), post, sess.UserID(), profile.User, req.Content)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// resolvePost returns the cached document for a post, fetching it on a miss
// so reconciliation always starts from known state.
func (s *Server) resolvePost(c *fiber.Ctx, postID string) (*models.Post, error) {
	if post, _, ok := s.cache.Post(postID); ok {
		return post, nil
	}
	return s.gw.FetchPost(c.Context(), postID)
}
