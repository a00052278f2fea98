// Package gateway implements the client side of the remote query/subscription
// gateway: named operations, an HTTP transport for queries and mutations, a
// WebSocket transport for live subscriptions, and the normalized in-memory
// result cache shared by the reconciler and the paginator.
package gateway

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"photogram/internal/models"
	"photogram/internal/observability"
)

// EventType identifies a cache change pushed to watchers.
type EventType string

const (
	EventPostUpdated  EventType = "post_updated"
	EventPostsWritten EventType = "posts_written"
	EventPostRemoved  EventType = "post_removed"
	EventRolledBack   EventType = "rolled_back"
)

// Event describes a single cache change. Error carries the remote rejection
// that caused a rolled_back event, empty for every other type.
type Event struct {
	Type   EventType `json:"type"`
	PostID string    `json:"post_id,omitempty"`
	Key    string    `json:"key,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Cache is the normalized in-memory result cache. Posts are stored once,
// keyed by id; query documents reference posts by id so an edit to a post is
// visible through every document that contains it. All read-modify-write
// sequences happen under the cache lock, never across a suspension point.
type Cache struct {
	mu        sync.RWMutex
	posts     map[string]*models.Post
	versions  map[string]uint64
	postLists map[string][]string
	profiles  map[string]*models.Profile
	userLists map[string][]models.User

	watchMu  sync.Mutex
	watchers map[chan Event]struct{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		posts:     make(map[string]*models.Post),
		versions:  make(map[string]uint64),
		postLists: make(map[string][]string),
		profiles:  make(map[string]*models.Profile),
		userLists: make(map[string][]models.User),
		watchers:  make(map[chan Event]struct{}),
	}
}

// Key builds the canonical cache key for an operation and its variables.
// Variables are serialized with sorted keys so the same logical request
// always maps to the same document.
func Key(op Operation, vars Variables) string {
	if len(vars) == 0 {
		return op.Name
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(op.Name)
	for _, k := range keys {
		raw, err := json.Marshal(vars[k])
		if err != nil {
			continue
		}
		b.WriteByte(':')
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(raw)
	}
	return b.String()
}

// WritePosts stores an authoritative post list for the given operation. Posts
// are merged into the normalized store, overwriting any previous (including
// tentative) state; arrival order wins.
func (c *Cache) WritePosts(op Operation, vars Variables, posts []*models.Post) {
	key := Key(op, vars)

	c.mu.Lock()
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		cp := p.Clone()
		c.posts[cp.ID] = cp
		c.versions[cp.ID]++
		ids = append(ids, cp.ID)
	}
	c.postLists[key] = ids
	observability.CacheDocuments.WithLabelValues("post").Set(float64(len(c.posts)))
	c.mu.Unlock()

	c.notify(Event{Type: EventPostsWritten, Key: key})
}

// WritePartialPosts stores a post list whose documents carry only a partial
// selection (id, media, aggregate counts). Fields present in the partial
// overwrite the normalized document; everything the selection omits survives
// from the previously cached full document, so a grid query never degrades a
// post the feed already holds.
func (c *Cache) WritePartialPosts(op Operation, vars Variables, posts []*models.Post) {
	key := Key(op, vars)

	c.mu.Lock()
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		existing, ok := c.posts[p.ID]
		if !ok {
			c.posts[p.ID] = p.Clone()
		} else {
			if p.Media != "" {
				existing.Media = p.Media
			}
			existing.LikesCount = p.LikesCount
			existing.CommentsCount = p.CommentsCount
		}
		c.versions[p.ID]++
		ids = append(ids, p.ID)
	}
	c.postLists[key] = ids
	observability.CacheDocuments.WithLabelValues("post").Set(float64(len(c.posts)))
	c.mu.Unlock()

	c.notify(Event{Type: EventPostsWritten, Key: key})
}

// AppendPosts extends a stored post list with additional posts, skipping any
// id already present in the list. Used by the paginator and by live feed
// merges; the id-set check keeps the concatenated sequence duplicate-free.
func (c *Cache) AppendPosts(op Operation, vars Variables, posts []*models.Post) int {
	key := Key(op, vars)

	c.mu.Lock()
	existing := c.postLists[key]
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	appended := 0
	for _, p := range posts {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		cp := p.Clone()
		c.posts[cp.ID] = cp
		c.versions[cp.ID]++
		existing = append(existing, cp.ID)
		seen[cp.ID] = struct{}{}
		appended++
	}
	c.postLists[key] = existing
	observability.CacheDocuments.WithLabelValues("post").Set(float64(len(c.posts)))
	c.mu.Unlock()

	if appended > 0 {
		c.notify(Event{Type: EventPostsWritten, Key: key})
	}
	return appended
}

// ReadPosts materializes the post list stored for the given operation.
// Returned posts are deep copies; callers never hold references into the
// cache across a suspension point.
func (c *Cache) ReadPosts(op Operation, vars Variables) ([]*models.Post, bool) {
	key := Key(op, vars)

	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, ok := c.postLists[key]
	if !ok {
		return nil, false
	}
	posts := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.posts[id]; ok {
			posts = append(posts, p.Clone())
		}
	}
	return posts, true
}

// Post returns a deep copy of a single post and its current version, or
// ok=false when the post is not cached.
func (c *Cache) Post(id string) (*models.Post, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.posts[id]
	if !ok {
		return nil, 0, false
	}
	return p.Clone(), c.versions[id], true
}

// UpdatePost applies fn to the cached post atomically under the cache lock
// and returns the post's new version. The membership set and the aggregate
// count on a post are only ever changed together inside fn, so they can never
// be observed out of step.
func (c *Cache) UpdatePost(id string, fn func(*models.Post)) (uint64, bool) {
	c.mu.Lock()
	p, ok := c.posts[id]
	if !ok {
		c.mu.Unlock()
		return 0, false
	}
	fn(p)
	c.versions[id]++
	version := c.versions[id]
	c.mu.Unlock()

	c.notify(Event{Type: EventPostUpdated, PostID: id})
	return version, true
}

// CompareAndRestore puts snapshot back into the cache only if the post's
// version still equals expect, i.e. nothing intervened since the tentative
// edit that produced expect. A newer authoritative snapshot wins over a
// rollback of stale optimistic state. cause is the remote rejection that
// forced the rollback; it rides on the rolled_back event so the UI can show
// why the edit was undone.
func (c *Cache) CompareAndRestore(snapshot *models.Post, expect uint64, cause error) bool {
	c.mu.Lock()
	if c.versions[snapshot.ID] != expect {
		c.mu.Unlock()
		return false
	}
	c.posts[snapshot.ID] = snapshot.Clone()
	c.versions[snapshot.ID]++
	c.mu.Unlock()

	ev := Event{Type: EventRolledBack, PostID: snapshot.ID}
	if cause != nil {
		ev.Error = cause.Error()
	}
	c.notify(ev)
	return true
}

// RemovePost drops a post from the normalized store and from every document
// that references it.
func (c *Cache) RemovePost(id string) {
	c.mu.Lock()
	delete(c.posts, id)
	delete(c.versions, id)
	for key, ids := range c.postLists {
		kept := ids[:0]
		for _, pid := range ids {
			if pid != id {
				kept = append(kept, pid)
			}
		}
		c.postLists[key] = kept
	}
	observability.CacheDocuments.WithLabelValues("post").Set(float64(len(c.posts)))
	c.mu.Unlock()

	c.notify(Event{Type: EventPostRemoved, PostID: id})
}

// WriteProfile stores a profile document for the given operation.
func (c *Cache) WriteProfile(op Operation, vars Variables, profile *models.Profile) {
	key := Key(op, vars)
	c.mu.Lock()
	c.profiles[key] = profile
	observability.CacheDocuments.WithLabelValues("profile").Set(float64(len(c.profiles)))
	c.mu.Unlock()
}

// ReadProfile returns a copy of the profile document stored for the given
// operation. Like ReadPosts, callers never hold references into the cache.
func (c *Cache) ReadProfile(op Operation, vars Variables) (*models.Profile, bool) {
	key := Key(op, vars)
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[key]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// WriteUsers stores a user list document (search results, suggestions).
func (c *Cache) WriteUsers(op Operation, vars Variables, users []models.User) {
	key := Key(op, vars)
	c.mu.Lock()
	c.userLists[key] = users
	c.mu.Unlock()
}

// ReadUsers returns a copy of the user list stored for the given operation.
func (c *Cache) ReadUsers(op Operation, vars Variables) ([]models.User, bool) {
	key := Key(op, vars)
	c.mu.RLock()
	defer c.mu.RUnlock()
	users, ok := c.userLists[key]
	if !ok {
		return nil, false
	}
	return append([]models.User(nil), users...), true
}

// Clear discards every cached document. Called on sign-out.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.posts = make(map[string]*models.Post)
	c.versions = make(map[string]uint64)
	c.postLists = make(map[string][]string)
	c.profiles = make(map[string]*models.Profile)
	c.userLists = make(map[string][]models.User)
	observability.CacheDocuments.WithLabelValues("post").Set(0)
	observability.CacheDocuments.WithLabelValues("profile").Set(0)
	c.mu.Unlock()
}

// Watch registers a watcher channel that receives cache change events.
// Events are dropped rather than blocking a slow watcher.
func (c *Cache) Watch() chan Event {
	ch := make(chan Event, 64)
	c.watchMu.Lock()
	c.watchers[ch] = struct{}{}
	c.watchMu.Unlock()
	return ch
}

// Unwatch removes a watcher registered with Watch.
func (c *Cache) Unwatch(ch chan Event) {
	c.watchMu.Lock()
	delete(c.watchers, ch)
	c.watchMu.Unlock()
}

func (c *Cache) notify(ev Event) {
	c.watchMu.Lock()
	for ch := range c.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	c.watchMu.Unlock()
}
