// Package server wires the GraphQL API and its side routes into a Fiber app.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	_ "zola/docs" // swagger docs
	"zola/internal/cache"
	"zola/internal/config"
	"zola/internal/database"
	"zola/internal/graph"
	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/notifications"
	"zola/internal/repository"
	"zola/internal/service"
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// metrics registers the HTTP collectors once per process.
func metrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("zola-api")
	})
	return prom
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	media          *service.LocalMediaStore
	userService    *service.UserService
	bookService    *service.BookService
	tokenService   *service.TokenService
	resolver       *graph.Resolver
	graphql        *graph.Handler
}

// NewServer connects the database and Redis from cfg and builds the server.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return NewServerWithDeps(cfg, db, cache.InitRedis(cfg.RedisURL))
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// A nil redisClient selects the in-process token store, notifier and limiter.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	bookRepo := repository.NewBookRepository(db)
	writerRepo := repository.NewWriterRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: metrics(),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
		media:          service.NewLocalMediaStore(cfg.MediaRoot, cfg.MediaURL),
	}
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	cache.SetClient(redisClient)

	images := service.NewImageService(s.media, cfg)
	tags := service.NewTagService(repository.NewTagRepository(db))
	s.userService = service.NewUserService(userRepo, tags, images, cfg.ActivationWindow())
	s.bookService = service.NewBookService(bookRepo, writerRepo, tags, images)
	s.tokenService = service.NewTokenService(cfg, cache.NewTokenStore(redisClient), userRepo)

	var limiter *middleware.Limiter
	if redisClient != nil && cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewLimiter(redisClient, middleware.LimiterConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
			Policy: middleware.FailOpen,
			Bypass: cfg.Env == "test" || cfg.Env == "development",
		})
	}

	s.resolver = &graph.Resolver{
		Users:    s.userService,
		Books:    s.bookService,
		Writers:  service.NewWriterService(writerRepo),
		Readers:  service.NewReaderService(repository.NewReaderRepository(db), bookRepo),
		Comments: service.NewCommentService(repository.NewCommentRepository(db), bookRepo, s.notifier),
		Tags:     tags,
		Tokens:   s.tokenService,
		Images:   images,
		Limiter:  limiter,
	}
	s.graphql = graph.NewHandler(graph.NewSchema(s.resolver, graph.SchemaOptions{
		MaxDepth:      cfg.GraphQLMaxDepth,
		Introspection: cfg.GraphQLIntrospection,
	}))

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	// the media route serves user uploads inline; only the default
	// cross-origin policy needs relaxing for them.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS before anything that can short-circuit, so error responses carry the headers too.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Without Redis the per-operation limiter is off; fall back to a coarse per-IP cap.
	if s.redis == nil && s.config.RateLimitPerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        s.config.RateLimitPerMinute * 10,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return models.RespondWithError(c, fiber.StatusTooManyRequests, models.NewRateLimitError())
			},
		}))
	}

	app.Use(middleware.OptionalAuth(s.tokenService))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.HealthCheck)
	app.Get("/ping", s.Ping)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if !s.config.IsProduction() {
		app.Get("/monitor", monitor.New(monitor.Config{Title: "Zola Backend Metrics"}))
		app.Get("/swagger/*", swagger.HandlerDefault)
	}

	app.Get("/graphql", s.graphql.Serve)
	app.Post("/graphql", s.graphql.Serve)

	app.Get("/confirm-email", s.ConfirmEmail)

	app.Static(strings.TrimSuffix(s.config.MediaURL, "/"), s.media.Root(), fiber.Static{
		Browse: false,
	})

	ws := app.Group("/ws")
	ws.Get("/books/:id/comments", s.RequireUpgrade, s.CommentStreamHandler())
}

// App builds the Fiber app with middleware and routes, without listening.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:   "Zola API",
		BodyLimit: 2*s.config.MaxCoverBytes + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// StartWiring subscribes the comment hub to published events.
func (s *Server) StartWiring() error {
	return s.hub.StartWiring(s.shutdownCtx, s.notifier)
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	if err := s.StartWiring(); err != nil {
		middleware.Logger.Error("failed to start comment hub wiring", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if cache.GetClient() == s.redis {
			cache.SetClient(nil)
		}
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
