package reconciler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photogram/internal/gateway"
	"photogram/internal/models"
)

// remoteStub is a stub for the Remote interface backed by function fields.
type remoteStub struct {
	mu              sync.Mutex
	ops             []string
	doFn            func(ctx context.Context, op gateway.Operation, vars gateway.Variables) error
	insertCommentFn func(ctx context.Context, postID, userID, content string) (*models.Comment, error)
}

func (s *remoteStub) Do(ctx context.Context, op gateway.Operation, vars gateway.Variables, _ interface{}) error {
	s.mu.Lock()
	s.ops = append(s.ops, op.Name)
	fn := s.doFn
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, op, vars)
}

func (s *remoteStub) InsertComment(ctx context.Context, postID, userID, content string) (*models.Comment, error) {
	s.mu.Lock()
	s.ops = append(s.ops, gateway.CreateComment.Name)
	fn := s.insertCommentFn
	s.mu.Unlock()
	if fn == nil {
		return &models.Comment{ID: "c-confirmed", PostID: postID, Content: content}, nil
	}
	return fn(ctx, postID, userID, content)
}

func (s *remoteStub) opNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func seedCache(t *testing.T, posts ...*models.Post) *gateway.Cache {
	t.Helper()
	cache := gateway.NewCache()
	cache.WritePosts(gateway.GetFeed, gateway.Variables{"limit": len(posts)}, posts)
	return cache
}

func feedPost(id string) *models.Post {
	return &models.Post{
		ID:        id,
		Media:     "https://media.example.com/" + id + ".webp",
		User:      models.User{ID: "author-1", Username: "author"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestToggleLike_OptimisticApplyAndConfirm(t *testing.T) {
	t.Parallel()

	cache := seedCache(t, feedPost("p1"))
	remote := &remoteStub{}
	r := New(cache, remote)

	result, err := r.ToggleLike(context.Background(), "p1", "viewer-1", "author-1")
	require.NoError(t, err)
	assert.True(t, result.Active)
	assert.Equal(t, 1, result.Count)

	// The edit is visible before the remote round trip completes.
	post, _, ok := cache.Post("p1")
	require.True(t, ok)
	assert.True(t, post.LikedBy("viewer-1"))
	assert.Equal(t, 1, post.LikesCount)

	r.Flush()

	post, _, _ = cache.Post("p1")
	assert.True(t, post.LikedBy("viewer-1"), "confirmed edit stands as-is")
	assert.Equal(t, 1, post.LikesCount)
	assert.Equal(t, []string{"likePost"}, remote.opNames())
}

func TestToggleLike_ParityAfterDoubleToggle(t *testing.T) {
	t.Parallel()

	cache := seedCache(t, feedPost("p1"))
	remote := &remoteStub{}
	r := New(cache, remote)
	ctx := context.Background()

	_, err := r.ToggleLike(ctx, "p1", "viewer-1", "author-1")
	require.NoError(t, err)
	r.Flush()

	result, err := r.ToggleLike(ctx, "p1", "viewer-1", "author-1")
	require.NoError(t, err)
	assert.False(t, result.Active)
	assert.Equal(t, 0, result.Count)
	r.Flush()

	post, _, _ := cache.Post("p1")
	assert.False(t, post.LikedBy("viewer-1"))
	assert.Equal(t, 0, post.LikesCount)
	assert.Equal(t, []string{"likePost", "unlikePost"}, remote.opNames())
}

func TestToggleLike_RollsBackOnRemoteRejection(t *testing.T) {
	t.Parallel()

	cache := seedCache(t, feedPost("p1"))
	remote := &remoteStub{
		doFn: func(context.Context, gateway.Operation, gateway.Variables) error {
			return errors.New("permission denied")
		},
	}
	r := New(cache, remote)
	events := cache.Watch()

	result, err := r.ToggleLike(context.Background(), "p1", "viewer-1", "author-1")
	require.NoError(t, err, "the optimistic apply itself must not fail")
	assert.True(t, result.Active)

	r.Flush()

	post, _, _ := cache.Post("p1")
	assert.False(t, post.LikedBy("viewer-1"), "rejection restores the retained snapshot")
	assert.Equal(t, 0, post.LikesCount)

	var rolledBack gateway.Event
	for _, ev := range drainEvents(events) {
		if ev.Type == gateway.EventRolledBack {
			rolledBack = ev
			break
		}
	}
	require.Equal(t, gateway.EventRolledBack, rolledBack.Type, "rollback must be announced")
	assert.Contains(t, rolledBack.Error, "remote rejected like")
	assert.Contains(t, rolledBack.Error, "permission denied")
}

// drainEvents returns the events currently buffered on ch.
func drainEvents(ch chan gateway.Event) []gateway.Event {
	var out []gateway.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestToggleLike_RollbackSkippedWhenNewerStateIntervened(t *testing.T) {
	t.Parallel()

	cache := seedCache(t, feedPost("p1"))
	gate := make(chan struct{})
	remote := &remoteStub{
		doFn: func(context.Context, gateway.Operation, gateway.Variables) error {
			<-gate
			return errors.New("permission denied")
		},
	}
	r := New(cache, remote)

	_, err := r.ToggleLike(context.Background(), "p1", "viewer-1", "author-1")
	require.NoError(t, err)

	// An authoritative snapshot lands while the mutation is still in flight.
	authoritative := feedPost("p1")
	authoritative.LikesCount = 7
	cache.WritePosts(gateway.GetPost, gateway.Variables{"postId": "p1"}, []*models.Post{authoritative})

	close(gate)
	r.Flush()

	post, _, _ := cache.Post("p1")
	assert.Equal(t, 7, post.LikesCount, "the newer authoritative state must win over the rollback")
}

func TestToggleLike_SecondToggleSupersedesFirst(t *testing.T) {
	t.Parallel()

	cache := seedCache(t, feedPost("p1"))

	// The first toggle issues likePost, the second unlikePost; keying on the
	// operation pins each outcome to its toggle regardless of which goroutine
	// reaches the stub first.
	gate := make(chan struct{})
	remote := &remoteStub{}
	remote.doFn = func(_ context.Context, op gateway.Operation, _ gateway.Variables) error {
		if op.Name == gateway.LikePost.Name {
			<-gate
			return errors.New("timeout") // would roll back if it were still current
		}
		return nil
	}
	r := New(cache, remote)
	ctx := context.Background()

	_, err := r.ToggleLike(ctx, "p1", "viewer-1", "author-1")
	require.NoError(t, err)
	result, err := r.ToggleLike(ctx, "p1", "viewer-1", "author-1")
	require.NoError(t, err)
	assert.False(t, result.Active)

	close(gate)
	r.Flush()

	post, _, _ := cache.Post("p1")
	assert.False(t, post.LikedBy("viewer-1"), "the superseded outcome must not touch local state")
	assert.Equal(t, 0, post.LikesCount)
}

func TestToggleLike_UnknownPost(t *testing.T) {
	t.Parallel()

	r := New(gateway.NewCache(), &remoteStub{})
	_, err := r.ToggleLike(context.Background(), "missing", "viewer-1", "author-1")
	require.Error(t, err)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestToggleSave_MembershipOnly(t *testing.T) {
	t.Parallel()

	post := feedPost("p1")
	post.LikesCount = 3
	cache := seedCache(t, post)
	remote := &remoteStub{}
	r := New(cache, remote)
	ctx := context.Background()

	result, err := r.ToggleSave(ctx, "p1", "viewer-1")
	require.NoError(t, err)
	assert.True(t, result.Active)
	r.Flush()

	saved, _, _ := cache.Post("p1")
	assert.True(t, saved.SavedBy("viewer-1"))
	assert.Equal(t, 3, saved.LikesCount, "saving must not disturb other aggregates")

	result, err = r.ToggleSave(ctx, "p1", "viewer-1")
	require.NoError(t, err)
	assert.False(t, result.Active)
	r.Flush()

	unsaved, _, _ := cache.Post("p1")
	assert.False(t, unsaved.SavedBy("viewer-1"))
	assert.Equal(t, []string{"savePost", "unsavePost"}, remote.opNames())
}

func TestAddComment_Validation(t *testing.T) {
	t.Parallel()

	cache := seedCache(t, feedPost("p1"))
	r := New(cache, &remoteStub{})
	ctx := context.Background()
	post, _, _ := cache.Post("p1")
	author := models.User{ID: "viewer-1", Username: "viewer"}

	t.Run("empty content", func(t *testing.T) {
		t.Parallel()
		_, err := r.AddComment(ctx, post, "viewer-1", author, "")
		assert.Error(t, err)
	})

	t.Run("whitespace only", func(t *testing.T) {
		t.Parallel()
		_, err := r.AddComment(ctx, post, "viewer-1", author, "   \n\t ")
		assert.Error(t, err)
	})

	t.Run("content too long", func(t *testing.T) {
		t.Parallel()
		_, err := r.AddComment(ctx, post, "viewer-1", author, strings.Repeat("x", maxCommentLen+1))
		assert.Error(t, err)
	})
}

func TestAddComment_OptimisticThenConfirmedSwap(t *testing.T) {
	t.Parallel()

	post := feedPost("p1")
	post.Comments = []models.Comment{{ID: "c0", PostID: "p1", Content: "first"}}
	post.CommentsCount = 1
	cache := seedCache(t, post)

	confirmed := &models.Comment{
		ID:      "c1",
		PostID:  "p1",
		Content: "nice shot",
		User:    models.User{ID: "viewer-1", Username: "viewer"},
	}
	remote := &remoteStub{
		insertCommentFn: func(context.Context, string, string, string) (*models.Comment, error) {
			return confirmed, nil
		},
	}
	r := New(cache, remote)

	author := models.User{ID: "viewer-1", Username: "viewer"}
	optimistic, err := r.AddComment(context.Background(), post, "viewer-1", author, "nice shot")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(optimistic.ID, "optimistic-"))
	assert.Equal(t, "nice shot", optimistic.Content)

	// Visible immediately, appended after the existing comments.
	tentative, _, _ := cache.Post("p1")
	require.Len(t, tentative.Comments, 2)
	assert.Equal(t, "c0", tentative.Comments[0].ID)
	assert.Equal(t, optimistic.ID, tentative.Comments[1].ID)
	assert.Equal(t, 2, tentative.CommentsCount)

	r.Flush()

	// The confirmed comment replaces the optimistic one in its slot.
	final, _, _ := cache.Post("p1")
	require.Len(t, final.Comments, 2)
	assert.Equal(t, "c0", final.Comments[0].ID)
	assert.Equal(t, "c1", final.Comments[1].ID)
	assert.Equal(t, 2, final.CommentsCount)
}

func TestAddComment_RollsBackOnRejection(t *testing.T) {
	t.Parallel()

	post := feedPost("p1")
	post.Comments = []models.Comment{{ID: "c0", PostID: "p1", Content: "first"}}
	post.CommentsCount = 1
	cache := seedCache(t, post)

	remote := &remoteStub{
		insertCommentFn: func(context.Context, string, string, string) (*models.Comment, error) {
			return nil, errors.New("muted by author")
		},
	}
	r := New(cache, remote)

	author := models.User{ID: "viewer-1", Username: "viewer"}
	_, err := r.AddComment(context.Background(), post, "viewer-1", author, "nice shot")
	require.NoError(t, err)

	r.Flush()

	final, _, _ := cache.Post("p1")
	require.Len(t, final.Comments, 1)
	assert.Equal(t, "c0", final.Comments[0].ID)
	assert.Equal(t, 1, final.CommentsCount)
}

func TestInflightTracker_Supersession(t *testing.T) {
	t.Parallel()

	tracker := newInflightTracker()

	first := tracker.begin("like:p1:u1")
	assert.False(t, first.Superseded())

	second := tracker.begin("like:p1:u1")
	assert.True(t, first.Superseded())
	assert.False(t, second.Superseded())

	// Ending a stale token must not clear the newer one.
	tracker.end("like:p1:u1", first)
	third := tracker.begin("like:p1:u1")
	assert.True(t, second.Superseded())
	assert.False(t, third.Superseded())

	// A different entity is tracked independently.
	other := tracker.begin("like:p2:u1")
	assert.False(t, other.Superseded())
	assert.False(t, third.Superseded())
}
