package server

import (
	"context"
	"encoding/json"

	"photogram/internal/feed"
	"photogram/internal/gateway"
	"photogram/internal/models"
	"photogram/internal/observability"
	"photogram/internal/session"
)

// beginSession installs a fresh session: starts the identity subscription,
// warm-starts the feed documents from the snapshot store, and kicks off the
// first authoritative feed load.
func (s *Server) beginSession(sess *session.Session) {
	s.mu.Lock()
	if s.sessCancel != nil {
		s.sessCancel()
	}
	ctx, cancel := context.WithCancel(s.shutdownCtx)
	s.sess = sess
	s.sessCancel = cancel
	s.paginator = feed.NewPaginator(s.gw, sess.FeedIDs, s.config.FeedPageSize)
	paginator := s.paginator
	s.mu.Unlock()

	// Live identity document; every snapshot rederives the relationship sets
	// and pins the viewer's row id. The subscription filters on the provider
	// uid, the only id known before the first snapshot.
	s.subscriber.Subscribe(ctx, gateway.Me, gateway.Variables{"userId": sess.AuthUID()}, func(data json.RawMessage) {
		profile, err := gateway.DecodeMeSnapshot(data)
		if err != nil {
			observability.GlobalLogger.ErrorContext(ctx, "identity snapshot decode failed", "error", err.Error())
			return
		}
		sess.ApplySnapshot(profile)
	})

	// Render-from-snapshot while the first fetch is in flight. The documents
	// go into the normalized store; the paginator gets the sequence.
	if posts, ok := gateway.LoadFeedSnapshot(ctx, sess.AuthUID()); ok {
		s.cache.WritePosts(gateway.GetFeed, gateway.Variables{"warmStart": sess.AuthUID()}, posts)
		paginator.Warm(posts)
	}

	// The first authoritative load needs the snapshot-derived feed membership.
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-sess.Ready():
		}
		if err := paginator.Load(ctx); err != nil {
			observability.GlobalLogger.ErrorContext(ctx, "initial feed load failed", "error", err.Error())
			return
		}
		gateway.SaveFeedSnapshot(ctx, sess.AuthUID(), paginator.Posts())
	}()
}

// endSession tears down everything scoped to the signed-in identity. All
// cached documents are discarded on sign-out.
func (s *Server) endSession(ctx context.Context) {
	s.mu.Lock()
	sess := s.sess
	if s.sessCancel != nil {
		s.sessCancel()
		s.sessCancel = nil
	}
	for id, cancel := range s.postLive {
		cancel()
		delete(s.postLive, id)
	}
	s.sess = nil
	s.paginator = nil
	s.mu.Unlock()

	s.cache.Clear()
	if sess != nil {
		gateway.InvalidateSnapshots(ctx, sess.AuthUID())
	}
}

// currentSession returns the active session and paginator, or an
// unauthorized error between sign-out and the next sign-in.
func (s *Server) currentSession() (*session.Session, *feed.Paginator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return nil, nil, models.NewUnauthorizedError("No active session")
	}
	return s.sess, s.paginator, nil
}

// requireIdentity rejects mutations issued before the first identity
// snapshot: they are keyed by the viewer's row id, which is unknown until the
// identity document arrives.
func requireIdentity(sess *session.Session) error {
	if sess.UserID() == "" {
		return models.NewUnauthorizedError("Identity document not yet loaded")
	}
	return nil
}

// stopPostLive cancels the live subscription for a post, if one is running.
func (s *Server) stopPostLive(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.postLive[postID]; ok {
		cancel()
		delete(s.postLive, postID)
	}
}

// ensurePostLive starts a live subscription for a post-detail view if one is
// not already running. Snapshots are applied to the cache in arrival order;
// the paginator's id set keeps live re-delivery from duplicating the feed.
func (s *Server) ensurePostLive(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.postLive[postID]; running {
		return
	}
	if s.sessCancel == nil {
		return
	}

	ctx, cancel := context.WithCancel(s.shutdownCtx)
	s.postLive[postID] = cancel

	s.subscriber.Subscribe(ctx, gateway.GetPostLive, gateway.Variables{"postId": postID}, func(data json.RawMessage) {
		post, err := gateway.DecodePostSnapshot(data)
		if err != nil {
			observability.GlobalLogger.ErrorContext(ctx, "post snapshot decode failed", "error", err.Error())
			return
		}
		s.cache.WritePosts(gateway.GetPost, gateway.Variables{"postId": postID}, []*models.Post{post})
	})
}
