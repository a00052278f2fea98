package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photogram/internal/models"
)

// fetcherStub is a stub for the Fetcher interface. Each call pops the next
// canned page; fetchFn overrides the canned behavior entirely when set.
type fetcherStub struct {
	pages   [][]*models.Post
	calls   int
	cursors []*time.Time
	fetchFn func(ctx context.Context, feedIDs []string, limit int, lastTimestamp *time.Time) ([]*models.Post, error)
}

func (s *fetcherStub) FetchFeedPage(ctx context.Context, feedIDs []string, limit int, lastTimestamp *time.Time) ([]*models.Post, error) {
	s.calls++
	s.cursors = append(s.cursors, lastTimestamp)
	if s.fetchFn != nil {
		return s.fetchFn(ctx, feedIDs, limit, lastTimestamp)
	}
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func post(id string, userID string, age time.Duration) *models.Post {
	return &models.Post{
		ID:        id,
		User:      models.User{ID: userID},
		CreatedAt: t0.Add(-age),
	}
}

func ids(posts []*models.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func newTestPaginator(fetcher Fetcher) *Paginator {
	p := NewPaginator(fetcher, func() []string { return []string{"u1", "u2"} }, 2)
	p.Debounce = 0
	return p
}

func TestPaginator_Load(t *testing.T) {
	t.Parallel()

	t.Run("first page moves Loading to Ready", func(t *testing.T) {
		t.Parallel()
		fetcher := &fetcherStub{pages: [][]*models.Post{
			{post("p1", "u1", 0), post("p2", "u2", time.Hour)},
		}}
		p := newTestPaginator(fetcher)

		require.Equal(t, StateLoading, p.State())
		require.NoError(t, p.Load(context.Background()))
		assert.Equal(t, StateReady, p.State())
		assert.Equal(t, []string{"p1", "p2"}, ids(p.Posts()))

		require.Len(t, fetcher.cursors, 1)
		assert.Nil(t, fetcher.cursors[0], "first page carries no cursor")
	})

	t.Run("empty first page is immediately EndOfFeed", func(t *testing.T) {
		t.Parallel()
		p := newTestPaginator(&fetcherStub{})
		require.NoError(t, p.Load(context.Background()))
		assert.Equal(t, StateEndOfFeed, p.State())
		assert.Empty(t, p.Posts())
	})

	t.Run("repeated Load is a no-op after the first", func(t *testing.T) {
		t.Parallel()
		fetcher := &fetcherStub{pages: [][]*models.Post{{post("p1", "u1", 0)}}}
		p := newTestPaginator(fetcher)
		require.NoError(t, p.Load(context.Background()))
		require.NoError(t, p.Load(context.Background()))
		assert.Equal(t, 1, fetcher.calls)
	})

	t.Run("fetch error stays Loading and surfaces the error", func(t *testing.T) {
		t.Parallel()
		fetchErr := errors.New("gateway unreachable")
		fetcher := &fetcherStub{fetchFn: func(context.Context, []string, int, *time.Time) ([]*models.Post, error) {
			return nil, fetchErr
		}}
		p := newTestPaginator(fetcher)
		assert.ErrorIs(t, p.Load(context.Background()), fetchErr)
		assert.Equal(t, StateLoading, p.State())
	})

	t.Run("empty feed membership defers the first fetch", func(t *testing.T) {
		t.Parallel()
		fetcher := &fetcherStub{}
		p := NewPaginator(fetcher, func() []string { return nil }, 2)
		p.Debounce = 0

		require.NoError(t, p.Load(context.Background()))
		assert.Equal(t, StateLoading, p.State(), "an unknown membership is not an empty feed")
		assert.Equal(t, 0, fetcher.calls)
	})
}

func TestPaginator_WarmStart(t *testing.T) {
	t.Parallel()

	fetcher := &fetcherStub{pages: [][]*models.Post{
		{post("p1", "u1", 0), post("p3", "u2", 2*time.Hour)},
	}}
	p := newTestPaginator(fetcher)

	p.Warm([]*models.Post{post("p1", "u1", 0), post("p2", "u2", time.Hour)})
	assert.Equal(t, StateLoading, p.State())
	assert.Equal(t, []string{"p1", "p2"}, ids(p.Posts()), "warm content renders while the fetch is in flight")

	// The authoritative first page replaces the warm content entirely.
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, []string{"p1", "p3"}, ids(p.Posts()))

	// After Ready, Warm is a no-op.
	p.Warm([]*models.Post{post("p9", "u1", 3*time.Hour)})
	assert.Equal(t, []string{"p1", "p3"}, ids(p.Posts()))
}

func TestPaginator_RequestMore(t *testing.T) {
	t.Parallel()

	t.Run("cursor is the createdAt of the last element", func(t *testing.T) {
		t.Parallel()
		fetcher := &fetcherStub{pages: [][]*models.Post{
			{post("p1", "u1", 0), post("p2", "u2", time.Hour)},
			{post("p3", "u1", 2 * time.Hour)},
		}}
		p := newTestPaginator(fetcher)
		require.NoError(t, p.Load(context.Background()))

		state, err := p.RequestMore(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateReady, state)
		assert.Equal(t, []string{"p1", "p2", "p3"}, ids(p.Posts()))

		require.Len(t, fetcher.cursors, 2)
		require.NotNil(t, fetcher.cursors[1])
		assert.Equal(t, t0.Add(-time.Hour), *fetcher.cursors[1])
	})

	t.Run("empty page is terminal", func(t *testing.T) {
		t.Parallel()
		fetcher := &fetcherStub{pages: [][]*models.Post{
			{post("p1", "u1", 0)},
		}}
		p := newTestPaginator(fetcher)
		require.NoError(t, p.Load(context.Background()))

		state, err := p.RequestMore(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateEndOfFeed, state)

		// Once terminal, triggers never issue another request.
		calls := fetcher.calls
		state, err = p.RequestMore(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateEndOfFeed, state)
		assert.Equal(t, calls, fetcher.calls)
	})

	t.Run("trigger before first load is ignored", func(t *testing.T) {
		t.Parallel()
		fetcher := &fetcherStub{}
		p := newTestPaginator(fetcher)

		state, err := p.RequestMore(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateLoading, state)
		assert.Equal(t, 0, fetcher.calls)
	})

	t.Run("fetch error returns to Ready", func(t *testing.T) {
		t.Parallel()
		fetchErr := errors.New("gateway unreachable")
		fetcher := &fetcherStub{}
		fetcher.fetchFn = func(_ context.Context, _ []string, _ int, cursor *time.Time) ([]*models.Post, error) {
			if cursor == nil {
				return []*models.Post{post("p1", "u1", 0)}, nil
			}
			return nil, fetchErr
		}
		p := newTestPaginator(fetcher)
		require.NoError(t, p.Load(context.Background()))

		state, err := p.RequestMore(context.Background())
		assert.ErrorIs(t, err, fetchErr)
		assert.Equal(t, StateReady, state, "a transient failure must not strand the paginator")
	})

	t.Run("duplicate ids across pages are dropped", func(t *testing.T) {
		t.Parallel()
		// The server page overlaps the already loaded tail.
		fetcher := &fetcherStub{pages: [][]*models.Post{
			{post("p1", "u1", 0), post("p2", "u2", time.Hour)},
			{post("p2", "u2", time.Hour), post("p3", "u1", 2 * time.Hour)},
		}}
		p := newTestPaginator(fetcher)
		require.NoError(t, p.Load(context.Background()))

		_, err := p.RequestMore(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"p1", "p2", "p3"}, ids(p.Posts()))
	})

	t.Run("debounce suppresses rapid triggers", func(t *testing.T) {
		t.Parallel()
		fetcher := &fetcherStub{pages: [][]*models.Post{
			{post("p1", "u1", 0)},
			{post("p2", "u2", time.Hour)},
			{post("p3", "u1", 2 * time.Hour)},
		}}
		p := NewPaginator(fetcher, func() []string { return []string{"u1"} }, 1)
		p.Debounce = time.Hour
		require.NoError(t, p.Load(context.Background()))

		_, err := p.RequestMore(context.Background())
		require.NoError(t, err)
		state, err := p.RequestMore(context.Background())
		require.NoError(t, err)

		assert.Equal(t, StateReady, state)
		assert.Equal(t, 2, fetcher.calls, "the second trigger inside the window is dropped")
	})
}

// Two accounts post on an interleaved timeline; pages walk strictly backward
// in time regardless of which account each post belongs to.
func TestPaginator_InterleavedTimeline(t *testing.T) {
	t.Parallel()

	a1 := post("a1", "u1", 1*time.Hour)
	b1 := post("b1", "u2", 2*time.Hour)
	a2 := post("a2", "u1", 3*time.Hour)
	b2 := post("b2", "u2", 4*time.Hour)
	a3 := post("a3", "u1", 5*time.Hour)

	fetcher := &fetcherStub{pages: [][]*models.Post{
		{a1, b1},
		{a2, b2},
		{a3},
		{},
	}}
	p := newTestPaginator(fetcher)
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	for i := 0; i < 3; i++ {
		_, err := p.RequestMore(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a1", "b1", "a2", "b2", "a3"}, ids(p.Posts()))
	assert.Equal(t, StateEndOfFeed, p.State())

	// Each cursor is the timestamp of the previous page's oldest post.
	require.Len(t, fetcher.cursors, 4)
	assert.Equal(t, b1.CreatedAt, *fetcher.cursors[1])
	assert.Equal(t, b2.CreatedAt, *fetcher.cursors[2])
	assert.Equal(t, a3.CreatedAt, *fetcher.cursors[3])
}

func TestPaginator_MergeLive(t *testing.T) {
	t.Parallel()

	fetcher := &fetcherStub{pages: [][]*models.Post{
		{post("p1", "u1", time.Hour), post("p2", "u2", 2 * time.Hour)},
	}}
	p := newTestPaginator(fetcher)
	require.NoError(t, p.Load(context.Background()))

	t.Run("new post lands in timestamp order", func(t *testing.T) {
		assert.True(t, p.MergeLive(post("p0", "u2", 0)))
		assert.Equal(t, []string{"p0", "p1", "p2"}, ids(p.Posts()))
	})

	t.Run("re-delivery of a loaded post is dropped", func(t *testing.T) {
		assert.False(t, p.MergeLive(post("p1", "u1", time.Hour)))
		assert.Equal(t, []string{"p0", "p1", "p2"}, ids(p.Posts()))
	})
}
