package server

import (
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photogram/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	mr := miniredis.RunT(t)
	return &config.Config{
		Port:                 "0",
		GraphQLURL:           "http://localhost:1/v1/graphql",
		GraphQLWSURL:         "ws://localhost:1/v1/graphql",
		AuthURL:              "http://localhost:1/identitytoolkit",
		UploadURL:            "http://localhost:1/image/upload",
		UploadPreset:         "test",
		RedisURL:             mr.Addr(),
		AllowedOrigins:       "http://localhost:5173",
		Env:                  "test",
		FeedPageSize:         2,
		ImageMaxUploadSizeMB: 10,
	}
}

// A single server instance backs every subtest; the prometheus middleware
// registers collectors globally and cannot be constructed twice.
func TestServerSurface(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	app := fiber.New()
	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)

	t.Run("health check", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("protected routes require a session", func(t *testing.T) {
		for _, path := range []string{
			"/api/feed",
			"/api/explore",
			"/api/session",
			"/api/posts/p1",
			"/api/users/search",
		} {
			resp, err := app.Test(httptest.NewRequest("GET", path, nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
		}
	})

	t.Run("auth state is public", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/auth/state", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("signup rejects an invalid form", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/signup", nil)
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("metrics endpoint is exposed", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
