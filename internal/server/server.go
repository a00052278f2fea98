// Package server exposes the runtime's local surface: page-shaped reads,
// action endpoints, and the WebSocket push channel the UI renders from.
package server

import (
	"context"
	"sync"
	"time"

	"photogram/internal/config"
	"photogram/internal/feed"
	"photogram/internal/gateway"
	"photogram/internal/middleware"
	"photogram/internal/push"
	"photogram/internal/reconciler"
	"photogram/internal/session"
	"photogram/internal/uploader"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config     *config.Config
	cache      *gateway.Cache
	gw         *gateway.Client
	subscriber *gateway.Subscriber
	auth       *session.Manager
	reconciler *reconciler.Reconciler
	uploader   *uploader.Uploader
	hub        *push.Hub
	redis      *redis.Client

	promMiddleware *fiberprometheus.FiberPrometheus

	shutdownCtx context.Context
	shutdownFn  context.CancelFunc

	// Session-scoped state, replaced on every sign-in and cleared on sign-out.
	mu         sync.RWMutex
	sess       *session.Session
	paginator  *feed.Paginator
	sessCancel context.CancelFunc
	postLive   map[string]context.CancelFunc
}

// NewServer creates a server instance with all dependencies wired.
func NewServer(cfg *config.Config) (*Server, error) {
	gateway.InitSnapshotStore(cfg.RedisURL)
	redisClient := gateway.SnapshotClient()

	cache := gateway.NewCache()

	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		config:      cfg,
		cache:       cache,
		hub:         push.NewHub(),
		redis:       redisClient,
		shutdownCtx: ctx,
		shutdownFn:  cancel,
		postLive:    make(map[string]context.CancelFunc),
	}

	server.auth = session.NewManager(cfg.AuthURL, cfg.AuthAPIKey, nil, nil)
	server.gw = gateway.NewClient(cfg.GraphQLURL, server.auth.Token, cache)
	server.auth.SetDirectory(server.gw, &profileCreator{gw: server.gw})
	server.subscriber = gateway.NewSubscriber(cfg.GraphQLWSURL, server.auth.Token)
	server.reconciler = reconciler.New(cache, server.gw)
	server.uploader = uploader.New(cfg.UploadURL, cfg.UploadPreset, cfg.ImageMaxUploadSizeMB)

	server.promMiddleware = fiberprometheus.New("photogram-client")

	server.hub.Forward(ctx, cache)

	return server, nil
}

// profileCreator adapts the gateway client to the auth manager's
// profile-registration hook.
type profileCreator struct {
	gw *gateway.Client
}

func (p *profileCreator) CreateProfile(ctx context.Context, userID string, in session.SignUpInput) error {
	return p.gw.InsertUser(ctx, userID, in.Name, in.Username, in.Email, defaultProfileImage)
}

// defaultProfileImage is assigned to accounts created without an avatar.
const defaultProfileImage = "/images/default-user-image.jpg"

// SetupMiddleware configures the global middleware stack.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogging())

	s.promMiddleware.RegisterAt(app, "/metrics")
	app.Use(s.promMiddleware.Middleware)

	app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Overlay-Modal",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
}

// SetupRoutes configures all routes for the local surface.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.HealthCheck)

	api := app.Group("/api")

	authRequired := middleware.AuthRequired(s.auth)
	mutationLimit := middleware.RateLimit(s.redis, 60, time.Minute, "mutations")

	// Auth surface; reachable while signed out.
	api.Post("/auth/signup", middleware.RateLimit(s.redis, 10, time.Minute, "signup"), s.SignUp)
	api.Post("/auth/signin", middleware.RateLimit(s.redis, 20, time.Minute, "signin"), s.SignIn)
	api.Post("/auth/signout", authRequired, s.SignOut)
	api.Get("/auth/state", s.AuthState)
	api.Get("/auth/username-available", s.UsernameAvailable)

	// Everything below is auth-gated; signed-out callers get 401.
	api.Get("/session", authRequired, s.GetSession)

	api.Get("/feed", authRequired, s.GetFeed)
	api.Post("/feed/more", authRequired, s.FetchMoreFeed)

	api.Get("/explore", authRequired, s.GetExplore)

	api.Get("/posts/:postId", authRequired, s.GetPost)
	api.Get("/posts/:postId/more-from-user", authRequired, s.GetMorePostsFromUser)
	api.Post("/posts", authRequired, mutationLimit, s.CreatePost)
	api.Delete("/posts/:postId", authRequired, mutationLimit, s.DeletePost)
	api.Post("/posts/:postId/like", authRequired, mutationLimit, s.ToggleLike)
	api.Post("/posts/:postId/save", authRequired, mutationLimit, s.ToggleSave)
	api.Post("/posts/:postId/comments", authRequired, mutationLimit, s.AddComment)

	api.Get("/users/search", authRequired, s.SearchUsers)
	api.Get("/users/suggestions", authRequired, s.SuggestUsers)
	api.Get("/users/:username", authRequired, s.GetProfile)
	api.Post("/users/:userId/follow", authRequired, mutationLimit, s.Follow)
	api.Delete("/users/:userId/follow", authRequired, mutationLimit, s.Unfollow)

	api.Put("/profile", authRequired, mutationLimit, s.EditProfile)
	api.Put("/profile/avatar", authRequired, mutationLimit, s.EditAvatar)

	s.setupWebSocketRoutes(app)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"auth":   string(s.auth.State().Status),
	})
}

// Shutdown releases session subscriptions, waits for in-flight
// reconciliations, and disconnects push clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.endSession(context.Background())
	s.shutdownFn()
	s.reconciler.Flush()
	return s.hub.Shutdown(ctx)
}
