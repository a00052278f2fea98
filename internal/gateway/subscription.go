package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"photogram/internal/observability"

	"github.com/gorilla/websocket"
)

const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgKeepAlive      = "ka"
	msgStart          = "start"
	msgData           = "data"
	msgError          = "error"
	msgComplete       = "complete"
	msgStop           = "stop"
)

// reconnectBackoff is the delay ladder between reconnect attempts.
var reconnectBackoff = []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SnapshotHandler receives each subscription result document in arrival order.
type SnapshotHandler func(data json.RawMessage)

// Subscriber maintains live subscriptions over a WebSocket transport.
// Snapshots are delivered in arrival order; there is no reordering of stale
// frames beyond what the transport itself guarantees.
type Subscriber struct {
	url    string
	token  TokenSource
	dialer *websocket.Dialer
	logger *observability.GatewayLogger
}

// NewSubscriber creates a Subscriber for the gateway's WebSocket endpoint.
func NewSubscriber(url string, token TokenSource) *Subscriber {
	return &Subscriber{
		url:    url,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: observability.NewGatewayLogger("ws"),
	}
}

// Subscribe starts op and invokes handler for every result document until ctx
// is canceled. The connection is re-established with backoff after transport
// failures; each reconnect restarts the operation from the server's current state.
func (s *Subscriber) Subscribe(ctx context.Context, op Operation, vars Variables, handler SnapshotHandler) {
	go s.run(ctx, op, vars, handler)
}

func (s *Subscriber) run(ctx context.Context, op Operation, vars Variables, handler SnapshotHandler) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		delivered := false
		err := s.stream(ctx, op, vars, func(data json.RawMessage) {
			delivered = true
			handler(data)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.LogError(ctx, err, op.Name)
		}

		// A stream that delivered data was healthy; its loss restarts the
		// ladder from the bottom.
		if delivered {
			attempt = 0
		}

		backoff := reconnectBackoff[attempt]
		if attempt < len(reconnectBackoff)-1 {
			attempt++
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (s *Subscriber) stream(ctx context.Context, op Operation, vars Variables, handler SnapshotHandler) error {
	header := http.Header{}
	header.Set("Sec-WebSocket-Protocol", "graphql-ws")
	if token := s.token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", op.Name, err)
	}
	defer conn.Close()

	// Close the connection when ctx is canceled so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(wsMessage{Type: msgConnectionInit}); err != nil {
		return fmt.Errorf("init %s: %w", op.Name, err)
	}

	startPayload, err := json.Marshal(requestEnvelope{
		OperationName: op.Name,
		Query:         op.Doc,
		Variables:     vars,
	})
	if err != nil {
		return fmt.Errorf("encode %s start: %w", op.Name, err)
	}

	started := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read %s: %w", op.Name, err)
		}

		switch msg.Type {
		case msgConnectionAck:
			if !started {
				if err := conn.WriteJSON(wsMessage{ID: "1", Type: msgStart, Payload: startPayload}); err != nil {
					return fmt.Errorf("start %s: %w", op.Name, err)
				}
				started = true
			}
		case msgKeepAlive:
			// ignore
		case msgData:
			var payload struct {
				Data   json.RawMessage `json:"data"`
				Errors []struct {
					Message string `json:"message"`
				} `json:"errors"`
			}
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				s.logger.LogError(ctx, err, op.Name)
				continue
			}
			if len(payload.Errors) > 0 {
				remote := &RemoteError{Operation: op.Name}
				for _, e := range payload.Errors {
					remote.Messages = append(remote.Messages, e.Message)
				}
				s.logger.LogError(ctx, remote, op.Name)
				continue
			}
			observability.SubscriptionSnapshots.WithLabelValues(op.Name).Inc()
			s.logger.LogSnapshot(ctx, op.Name, nil)
			handler(payload.Data)
		case msgError:
			return &RemoteError{Operation: op.Name, Messages: []string{string(msg.Payload)}}
		case msgComplete:
			return nil
		}
	}
}
