package server

import (
	"github.com/gofiber/fiber/v2"

	"photogram/internal/feed"
	"photogram/internal/gateway"
	"photogram/internal/models"
)

// GetFeed handles GET /api/feed: the home timeline in its current state.
// The initial load is kicked off at sign-in, so this usually serves straight
// from the document cache.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	sess, paginator, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	if paginator.State() == feed.StateLoading {
		if err := paginator.Load(c.Context()); err != nil {
			return models.RespondWithError(c, 0, err)
		}
		gateway.SaveFeedSnapshot(c.Context(), sess.AuthUID(), paginator.Posts())
	}

	return c.JSON(s.feedResponse(paginator))
}

// FetchMoreFeed handles POST /api/feed/more: the infinite-scroll trigger.
// Requests arriving while a page fetch is already in flight, or after the
// feed has been exhausted, return the current state unchanged.
func (s *Server) FetchMoreFeed(c *fiber.Ctx) error {
	sess, paginator, err := s.currentSession()
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}

	if _, err := paginator.RequestMore(c.Context()); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	gateway.SaveFeedSnapshot(c.Context(), sess.AuthUID(), paginator.Posts())

	return c.JSON(s.feedResponse(paginator))
}

// feedResponse renders the feed from the normalized cache: the paginator owns
// membership and order, the cache owns document content, so optimistic edits
// and live snapshots show the moment they land.
func (s *Server) feedResponse(p *feed.Paginator) fiber.Map {
	return fiber.Map{
		"posts":       materializePosts(s.cache, p.Posts()),
		"state":       string(p.State()),
		"end_of_feed": p.State() == feed.StateEndOfFeed,
	}
}

// materializePosts swaps each post for its current cached document, keeping
// the paginator's copy only when the cache no longer holds the post.
func materializePosts(cache *gateway.Cache, posts []*models.Post) []*models.Post {
	for i, post := range posts {
		if current, _, ok := cache.Post(post.ID); ok {
			posts[i] = current
		}
	}
	return posts
}
