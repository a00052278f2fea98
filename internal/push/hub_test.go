package push

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photogram/internal/gateway"
)

func TestHub_RegisterLimits(t *testing.T) {
	t.Parallel()

	h := NewHub()

	clients := make([]*Client, 0, maxConnsPerUser)
	for i := 0; i < maxConnsPerUser; i++ {
		c, err := h.Register("u1", nil)
		require.NoError(t, err)
		clients = append(clients, c)
	}

	_, err := h.Register("u1", nil)
	assert.Error(t, err, "per-user cap must be enforced")

	// Freeing a slot allows a new connection.
	h.UnregisterClient(clients[0])
	_, err = h.Register("u1", nil)
	assert.NoError(t, err)
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c, err := h.Register("u1", nil)
	require.NoError(t, err)

	h.UnregisterClient(c)
	h.UnregisterClient(c) // second call must not double-close Send

	_, open := <-c.Send
	assert.False(t, open)
}

func TestHub_BroadcastFansOut(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c1, err := h.Register("u1", nil)
	require.NoError(t, err)
	c2, err := h.Register("u2", nil)
	require.NoError(t, err)

	h.Broadcast(gateway.Event{Type: gateway.EventPostUpdated, PostID: "p1"})

	for _, c := range []*Client{c1, c2} {
		select {
		case raw := <-c.Send:
			var ev gateway.Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			assert.Equal(t, gateway.EventPostUpdated, ev.Type)
			assert.Equal(t, "p1", ev.PostID)
		case <-time.After(time.Second):
			t.Fatal("client did not receive the broadcast")
		}
	}
}

func TestHub_BroadcastDropsForSlowClients(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c, err := h.Register("u1", nil)
	require.NoError(t, err)

	// Fill the client's buffer; further events must be dropped, not block.
	for i := 0; i < cap(c.Send)+10; i++ {
		h.Broadcast(gateway.Event{Type: gateway.EventPostUpdated, PostID: "p1"})
	}
	assert.Len(t, c.Send, cap(c.Send))
}

func TestHub_ForwardRelaysCacheEvents(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c, err := h.Register("u1", nil)
	require.NoError(t, err)

	cache := gateway.NewCache()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Forward(ctx, cache)

	cache.WritePosts(gateway.GetFeed, gateway.Variables{"limit": 1}, nil)

	select {
	case raw := <-c.Send:
		var ev gateway.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, gateway.EventPostsWritten, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("forwarded event never arrived")
	}
}
