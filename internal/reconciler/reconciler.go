// Package reconciler applies optimistic local edits to the cached result set
// the instant a user acts, issues the remote mutation concurrently, and
// reconciles once the server confirms or rejects it. Edits are two-phase:
// the pre-tentative snapshot is retained so a confirmed remote failure rolls
// the cache back instead of leaving a phantom count behind.
package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"photogram/internal/gateway"
	"photogram/internal/models"
	"photogram/internal/observability"

	"github.com/google/uuid"
)

const maxCommentLen = 2200

// Cache is the slice of the normalized cache the reconciler needs. UpdatePost
// runs its edit atomically under the cache lock; CompareAndRestore refuses to
// roll back over state that changed after the tentative edit.
type Cache interface {
	Post(id string) (*models.Post, uint64, bool)
	UpdatePost(id string, fn func(*models.Post)) (uint64, bool)
	CompareAndRestore(snapshot *models.Post, expect uint64, cause error) bool
}

// Remote issues the confirming mutations. Implemented by gateway.Client.
type Remote interface {
	Do(ctx context.Context, op gateway.Operation, vars gateway.Variables, out interface{}) error
	InsertComment(ctx context.Context, postID, userID, content string) (*models.Comment, error)
}

// Reconciler keeps rendered counts and membership consistent with user intent
// without waiting for the round trip.
type Reconciler struct {
	cache    Cache
	remote   Remote
	inflight *inflightTracker
	logger   *observability.ReconcileLogger
	pending  sync.WaitGroup
}

// New creates a reconciler over the given cache and remote.
func New(cache Cache, remote Remote) *Reconciler {
	return &Reconciler{
		cache:    cache,
		remote:   remote,
		inflight: newInflightTracker(),
		logger:   observability.NewReconcileLogger(),
	}
}

// Flush blocks until every in-flight remote confirmation has completed.
// Called on shutdown and by tests.
func (r *Reconciler) Flush() {
	r.pending.Wait()
}

// ToggleResult is the locally visible state right after an optimistic toggle.
type ToggleResult struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

func entityKey(kind, postID, viewerID string) string {
	return strings.Join([]string{kind, postID, viewerID}, ":")
}

// ToggleLike flips the viewer's membership in the post's liker set and
// adjusts the aggregate count by one in the same atomic cache edit, then
// issues the matching remote mutation concurrently. A rapid second toggle
// supersedes the first: the first mutation still fires, but its outcome no
// longer touches local state.
func (r *Reconciler) ToggleLike(ctx context.Context, postID, viewerID, authorID string) (*ToggleResult, error) {
	snapshot, _, ok := r.cache.Post(postID)
	if !ok {
		return nil, models.NewNotFoundError("post", postID)
	}

	liking := !snapshot.LikedBy(viewerID)

	var count int
	version, ok := r.cache.UpdatePost(postID, func(p *models.Post) {
		if liking {
			p.LikerIDs = append(p.LikerIDs, viewerID)
			p.LikesCount++
		} else {
			p.LikerIDs = removeID(p.LikerIDs, viewerID)
			p.LikesCount--
		}
		count = p.LikesCount
	})
	if !ok {
		return nil, models.NewNotFoundError("post", postID)
	}

	observability.ReconcileEvents.WithLabelValues("like", "applied").Inc()
	r.logger.LogApplied(ctx, "like", postID, viewerID)

	op := gateway.LikePost
	if !liking {
		op = gateway.UnlikePost
	}
	vars := gateway.Variables{"postId": postID, "userId": viewerID, "profileId": authorID}
	r.confirmAsync(ctx, "like", entityKey("like", postID, viewerID), snapshot, version, func(ctx context.Context) error {
		return r.remote.Do(ctx, op, vars, nil)
	})

	return &ToggleResult{Active: liking, Count: count}, nil
}

// ToggleSave flips the viewer's membership in the post's saver set. Saves are
// membership-only; there is no aggregate count to adjust.
func (r *Reconciler) ToggleSave(ctx context.Context, postID, viewerID string) (*ToggleResult, error) {
	snapshot, _, ok := r.cache.Post(postID)
	if !ok {
		return nil, models.NewNotFoundError("post", postID)
	}

	saving := !snapshot.SavedBy(viewerID)

	version, ok := r.cache.UpdatePost(postID, func(p *models.Post) {
		if saving {
			p.SaverIDs = append(p.SaverIDs, viewerID)
		} else {
			p.SaverIDs = removeID(p.SaverIDs, viewerID)
		}
	})
	if !ok {
		return nil, models.NewNotFoundError("post", postID)
	}

	observability.ReconcileEvents.WithLabelValues("save", "applied").Inc()
	r.logger.LogApplied(ctx, "save", postID, viewerID)

	op := gateway.SavePost
	if !saving {
		op = gateway.UnsavePost
	}
	vars := gateway.Variables{"postId": postID, "userId": viewerID}
	r.confirmAsync(ctx, "save", entityKey("save", postID, viewerID), snapshot, version, func(ctx context.Context) error {
		return r.remote.Do(ctx, op, vars, nil)
	})

	return &ToggleResult{Active: saving}, nil
}

// AddComment appends a locally synthesized comment to the post's comment
// sequence and increments the aggregate count in the same atomic edit. Once
// the server returns the confirmed comment, the optimistic entry is replaced
// in place; on rejection the pre-tentative sequence is restored.
func (r *Reconciler) AddComment(ctx context.Context, post *models.Post, authorID string, author models.User, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Comment content is required")
	}
	if len(content) > maxCommentLen {
		return nil, models.NewValidationError("Comment too long")
	}

	snapshot, _, ok := r.cache.Post(post.ID)
	if !ok {
		return nil, models.NewNotFoundError("post", post.ID)
	}

	optimistic := models.Comment{
		ID:        "optimistic-" + uuid.NewString(),
		PostID:    post.ID,
		Content:   content,
		User:      author,
		CreatedAt: time.Now().UTC(),
	}

	version, ok := r.cache.UpdatePost(post.ID, func(p *models.Post) {
		p.Comments = append(p.Comments, optimistic)
		p.CommentsCount++
	})
	if !ok {
		return nil, models.NewNotFoundError("post", post.ID)
	}

	observability.ReconcileEvents.WithLabelValues("comment", "applied").Inc()
	r.logger.LogApplied(ctx, "comment", post.ID, authorID)

	r.confirmAsync(ctx, "comment", entityKey("comment", post.ID, optimistic.ID), snapshot, version, func(ctx context.Context) error {
		confirmed, err := r.remote.InsertComment(ctx, post.ID, authorID, content)
		if err != nil {
			return err
		}
		// Swap the optimistic entry for the confirmed one, keeping its slot so
		// existing comments retain their order.
		r.cache.UpdatePost(post.ID, func(p *models.Post) {
			for i := range p.Comments {
				if p.Comments[i].ID == optimistic.ID {
					p.Comments[i] = *confirmed
					break
				}
			}
		})
		return nil
	})

	return &optimistic, nil
}

// confirmAsync runs the remote mutation off the calling task and reconciles
// the outcome: confirmed edits stand as-is, rejected edits roll back to the
// retained snapshot unless newer state has already overwritten them.
func (r *Reconciler) confirmAsync(ctx context.Context, kind, key string, snapshot *models.Post, version uint64, mutate func(context.Context) error) {
	tok := r.inflight.begin(key)
	r.pending.Add(1)

	// The mutation outlives the initiating request.
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer r.pending.Done()
		defer r.inflight.end(key, tok)

		err := mutate(ctx)

		if tok.Superseded() {
			observability.ReconcileEvents.WithLabelValues(kind, "superseded").Inc()
			return
		}

		if err == nil {
			observability.ReconcileEvents.WithLabelValues(kind, "confirmed").Inc()
			r.logger.LogConfirmed(ctx, kind, snapshot.ID)
			return
		}

		rejected := models.NewRemoteRejectedError(kind, err)
		observability.ReconcileEvents.WithLabelValues(kind, "rolled_back").Inc()
		r.logger.LogRolledBack(ctx, kind, snapshot.ID, rejected)
		r.cache.CompareAndRestore(snapshot, version, rejected)
	}()
}

func removeID(ids []string, id string) []string {
	kept := ids[:0]
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	return kept
}
