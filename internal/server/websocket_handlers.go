package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"photogram/internal/middleware"
	"photogram/internal/observability"
)

// setupWebSocketRoutes registers the cache event stream the UI subscribes to
// for push updates.
func (s *Server) setupWebSocketRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", middleware.WebSocketAuthRequired(s.auth), s.WebSocketEventsHandler())
}

// WebSocketEventsHandler streams cache events (post updates, rollbacks,
// removals) to a connected UI client until the peer disconnects.
func (s *Server) WebSocketEventsHandler() fiber.Handler {
	wsLogger := observability.NewWSLogger("events")

	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(string)

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			wsLogger.LogError(ctx, userID, err, "register")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// The hub owns the connection gauge.
		wsLogger.LogConnect(ctx, userID)

		go client.WritePump()
		client.ReadPump() // blocks until the peer goes away

		wsLogger.LogDisconnect(ctx, userID, "peer closed")
	})
}
