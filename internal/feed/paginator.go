// Package feed delivers the infinite-scroll home feed: an ordered,
// append-only page sequence with at most one in-flight fetch and a terminal
// end-of-feed state.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"photogram/internal/models"
	"photogram/internal/observability"
)

// State is the paginator's position in its fetch lifecycle.
type State string

const (
	// StateLoading is the initial state before the first page arrives.
	StateLoading State = "loading"
	// StateReady means a page is rendered and another may be requested.
	StateReady State = "ready"
	// StateFetchingMore means a fetch is outstanding; further triggers are ignored.
	StateFetchingMore State = "fetching_more"
	// StateEndOfFeed is terminal: the server returned an empty page and no
	// further fetch is ever issued.
	StateEndOfFeed State = "end_of_feed"
)

// defaultDebounce suppresses bursts of scroll-bottom triggers; the raw DOM
// condition stays true until new content shifts the layout.
const defaultDebounce = 200 * time.Millisecond

// Fetcher loads one feed page. Implemented by gateway.Client.
type Fetcher interface {
	FetchFeedPage(ctx context.Context, feedIDs []string, limit int, lastTimestamp *time.Time) ([]*models.Post, error)
}

// FeedIDsFunc supplies the current session's feed membership at fetch time,
// so a follow that lands between pages widens the next request.
type FeedIDsFunc func() []string

// Paginator maintains the feed's ordered post sequence. The sequence is
// sorted by createdAt descending, contains no duplicate post id, and only
// ever grows; the pagination cursor is the createdAt of its last element.
type Paginator struct {
	fetcher  Fetcher
	feedIDs  FeedIDsFunc
	pageSize int

	// Debounce is the minimum interval between accepted scroll triggers.
	Debounce time.Duration

	mu          sync.Mutex
	state       State
	posts       []*models.Post
	seen        map[string]struct{}
	lastTrigger time.Time
}

// NewPaginator creates a paginator in the Loading state.
func NewPaginator(fetcher Fetcher, feedIDs FeedIDsFunc, pageSize int) *Paginator {
	return &Paginator{
		fetcher:  fetcher,
		feedIDs:  feedIDs,
		pageSize: pageSize,
		Debounce: defaultDebounce,
		state:    StateLoading,
		seen:     make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (p *Paginator) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Posts returns a copy of the current ordered sequence.
func (p *Paginator) Posts() []*models.Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.Post(nil), p.posts...)
}

// Cursor returns the createdAt of the oldest loaded post, ok=false when the
// sequence is empty.
func (p *Paginator) Cursor() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.posts) == 0 {
		return time.Time{}, false
	}
	return p.posts[len(p.posts)-1].CreatedAt, true
}

// Warm seeds the sequence from a stored snapshot so there is something to
// render while the first fetch is in flight. Only effective in Loading; the
// first authoritative page replaces the warm content entirely.
func (p *Paginator) Warm(posts []*models.Post) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateLoading || len(p.posts) > 0 {
		return
	}
	for _, post := range posts {
		if _, dup := p.seen[post.ID]; dup {
			continue
		}
		p.seen[post.ID] = struct{}{}
		p.posts = append(p.posts, post)
	}
}

// Load fetches the first page. Transitions Loading -> Ready when the page has
// content, Loading -> EndOfFeed when the feed is empty from the start.
func (p *Paginator) Load(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateLoading {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// Feed membership always contains at least the viewer once the identity
	// document has arrived; an empty set means it has not, so the first fetch
	// waits rather than mistaking the gap for an empty feed.
	ids := p.feedIDs()
	if len(ids) == 0 {
		return nil
	}

	page, err := p.fetcher.FetchFeedPage(ctx, ids, p.pageSize, nil)
	if err != nil {
		observability.FeedFetches.WithLabelValues("error").Inc()
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(page) == 0 {
		observability.FeedFetches.WithLabelValues("empty").Inc()
		p.posts = nil
		p.seen = make(map[string]struct{})
		p.state = StateEndOfFeed
		return nil
	}
	// The authoritative first page replaces any warm-start content.
	p.posts = nil
	p.seen = make(map[string]struct{})
	p.appendLocked(page)
	observability.FeedFetches.WithLabelValues("page").Inc()
	p.state = StateReady
	return nil
}

// RequestMore is the debounced scroll-bottom trigger. It fetches the next
// page only from Ready: while a fetch is outstanding or after EndOfFeed the
// trigger is ignored without issuing a request. Returns the state in effect
// after the call.
func (p *Paginator) RequestMore(ctx context.Context) (State, error) {
	p.mu.Lock()
	if p.state != StateReady {
		state := p.state
		p.mu.Unlock()
		return state, nil
	}
	now := time.Now()
	if p.Debounce > 0 && now.Sub(p.lastTrigger) < p.Debounce {
		p.mu.Unlock()
		return StateReady, nil
	}
	p.lastTrigger = now
	cursor := p.posts[len(p.posts)-1].CreatedAt
	p.state = StateFetchingMore
	p.mu.Unlock()

	page, err := p.fetcher.FetchFeedPage(ctx, p.feedIDs(), p.pageSize, &cursor)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		// The trigger may fire again; a transient fetch failure must not
		// strand the paginator in FetchingMore.
		observability.FeedFetches.WithLabelValues("error").Inc()
		p.state = StateReady
		return p.state, err
	}

	if len(page) == 0 {
		observability.FeedFetches.WithLabelValues("empty").Inc()
		p.state = StateEndOfFeed
		return p.state, nil
	}

	p.appendLocked(page)
	observability.FeedFetches.WithLabelValues("page").Inc()
	p.state = StateReady
	return p.state, nil
}

// MergeLive folds a subscription-delivered post into the sequence. A post
// already loaded via pagination is skipped by id, so live re-delivery never
// duplicates the sequence; a genuinely new post is inserted in timestamp
// order.
func (p *Paginator) MergeLive(post *models.Post) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.seen[post.ID]; dup {
		return false
	}
	p.seen[post.ID] = struct{}{}
	p.posts = append(p.posts, post)
	sort.SliceStable(p.posts, func(i, j int) bool {
		return p.posts[i].CreatedAt.After(p.posts[j].CreatedAt)
	})
	return true
}

// appendLocked extends the sequence with a fetched page, dropping any id
// already present and anything newer than the current cursor, which keeps the
// concatenated sequence strictly descending by createdAt.
func (p *Paginator) appendLocked(page []*models.Post) {
	sort.SliceStable(page, func(i, j int) bool {
		return page[i].CreatedAt.After(page[j].CreatedAt)
	})
	for _, post := range page {
		if _, dup := p.seen[post.ID]; dup {
			continue
		}
		if n := len(p.posts); n > 0 && post.CreatedAt.After(p.posts[n-1].CreatedAt) {
			continue
		}
		p.seen[post.ID] = struct{}{}
		p.posts = append(p.posts, post)
	}
}
