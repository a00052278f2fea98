package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsGatewayStub speaks just enough of the subscription protocol to ack the
// connection, receive a start frame, and stream canned data frames.
type wsGatewayStub struct {
	t        *testing.T
	frames   []string
	started  chan requestEnvelope
	upgrader websocket.Upgrader
}

func newWSGatewayStub(t *testing.T, frames ...string) *wsGatewayStub {
	return &wsGatewayStub{
		t:       t,
		frames:  frames,
		started: make(chan requestEnvelope, 1),
	}
}

func (s *wsGatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	require.NoError(s.t, err)
	defer conn.Close()

	var init wsMessage
	require.NoError(s.t, conn.ReadJSON(&init))
	require.Equal(s.t, msgConnectionInit, init.Type)
	require.NoError(s.t, conn.WriteJSON(wsMessage{Type: msgConnectionAck}))

	var start wsMessage
	require.NoError(s.t, conn.ReadJSON(&start))
	require.Equal(s.t, msgStart, start.Type)

	var envelope requestEnvelope
	require.NoError(s.t, json.Unmarshal(start.Payload, &envelope))
	s.started <- envelope

	// Interleave a keep-alive the client must ignore.
	require.NoError(s.t, conn.WriteJSON(wsMessage{Type: msgKeepAlive}))

	for _, frame := range s.frames {
		require.NoError(s.t, conn.WriteJSON(wsMessage{
			ID:      start.ID,
			Type:    msgData,
			Payload: json.RawMessage(`{"data":` + frame + `}`),
		}))
	}
	require.NoError(s.t, conn.WriteJSON(wsMessage{ID: start.ID, Type: msgComplete}))

	// Hold the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriber_DeliversSnapshotsInArrivalOrder(t *testing.T) {
	t.Parallel()

	stub := newWSGatewayStub(t,
		`{"posts_by_pk":{"id":"p1","likes_aggregate":{"aggregate":{"count":1}}}}`,
		`{"posts_by_pk":{"id":"p1","likes_aggregate":{"aggregate":{"count":2}}}}`,
	)
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	sub := NewSubscriber(wsURL(srv), func() string { return "tok" })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots := make(chan json.RawMessage, 4)
	sub.Subscribe(ctx, GetPostLive, Variables{"postId": "p1"}, func(data json.RawMessage) {
		snapshots <- data
	})

	// The start frame carries the operation and its variables.
	select {
	case envelope := <-stub.started:
		assert.Equal(t, GetPostLive.Name, envelope.OperationName)
		assert.Equal(t, "p1", envelope.Variables["postId"])
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never started")
	}

	counts := []int{}
	for i := 0; i < 2; i++ {
		select {
		case data := <-snapshots:
			post, err := DecodePostSnapshot(data)
			require.NoError(t, err)
			counts = append(counts, post.LikesCount)
		case <-time.After(2 * time.Second):
			t.Fatal("snapshot never arrived")
		}
	}
	assert.Equal(t, []int{1, 2}, counts, "snapshots apply in arrival order")
}

func TestSubscriber_HealthyStreamResetsBackoff(t *testing.T) {
	// Swaps the package-level backoff ladder; not parallel.
	saved := reconnectBackoff
	reconnectBackoff = []time.Duration{0, time.Hour}
	t.Cleanup(func() { reconnectBackoff = saved })

	// Every connection streams one snapshot and completes, so the client
	// reconnects after each. With the ladder reset on a delivering stream the
	// reconnects stay instant; without it the second reconnect waits an hour.
	stub := newWSGatewayStub(t, `{"posts_by_pk":{"id":"p1"}}`)
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	sub := NewSubscriber(wsURL(srv), func() string { return "" })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots := make(chan json.RawMessage, 8)
	sub.Subscribe(ctx, GetPostLive, Variables{"postId": "p1"}, func(data json.RawMessage) {
		snapshots <- data
	})

	for i := 0; i < 3; i++ {
		select {
		case <-stub.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d never started", i+1)
		}
		select {
		case <-snapshots:
		case <-time.After(2 * time.Second):
			t.Fatalf("snapshot %d never arrived", i+1)
		}
	}
}

func TestSubscriber_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	stub := newWSGatewayStub(t)
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	sub := NewSubscriber(wsURL(srv), func() string { return "" })
	ctx, cancel := context.WithCancel(context.Background())

	delivered := make(chan struct{}, 1)
	sub.Subscribe(ctx, Me, Variables{"userId": "u1"}, func(json.RawMessage) {
		select {
		case delivered <- struct{}{}:
		default:
		}
	})

	select {
	case <-stub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never started")
	}
	cancel()

	// After cancellation no reconnect happens; give the run loop a moment to
	// observe the canceled context.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-delivered:
		t.Fatal("no snapshot should arrive for an empty stream")
	default:
	}
}
