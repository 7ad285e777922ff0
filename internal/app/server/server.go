package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/PowerLink/internal/app/service"
	inthttp "github.com/sifan077/PowerLink/internal/http/handler"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs.
type Dependencies struct {
	Logger       *zap.Logger
	Postgres     *pgxpool.Pool
	Redis        redis.UniversalClient
	LinkService  service.LinkService
	AuthService  service.AuthService
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimit is nil when rate limiting is disabled.
	RateLimit      *middleware.RateLimitConfig
	AllowedOrigins []string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates the HTTP server with its middleware chain and route table.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "PowerLink",
		ReadTimeout:           deps.ReadTimeout,
		WriteTimeout:          deps.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(
		middleware.RequestID(),
		middleware.Recovery(s.deps.Logger),
		middleware.Logger(s.deps.Logger),
		middleware.CORS(s.deps.AllowedOrigins...),
	)
	if s.deps.RateLimit != nil && s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, *s.deps.RateLimit, s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	requireAuth := middleware.RequireAuth(s.deps.AuthService)

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:       s.deps.Logger,
		LinkService:  s.deps.LinkService,
		HealthChecks: s.healthChecks(),
	})
	redirectHandler.RegisterHealth(s.app)

	api := s.app.Group("/api/v1")
	inthttp.NewAuthHandler(inthttp.AuthDeps{
		Logger:      s.deps.Logger,
		AuthService: s.deps.AuthService,
	}).Register(api, requireAuth)
	inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.LinkService,
	}).Register(api, requireAuth)

	// Single-segment catch-all goes last.
	redirectHandler.Register(s.app)
}

func (s *Server) healthChecks() []inthttp.HealthCheck {
	var checks []inthttp.HealthCheck
	if s.deps.Postgres != nil {
		checks = append(checks, inthttp.HealthCheck{
			Name:     "postgres",
			Critical: true,
			Check:    s.deps.Postgres.Ping,
		})
	}
	if s.deps.Redis != nil {
		checks = append(checks, inthttp.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return s.deps.Redis.Ping(ctx).Err()
			},
		})
	}
	return checks
}

// errorHandler renders errors that escape handlers, including Fiber's own
// 404 and 405, as JSON.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
		msg = ferr.Message
	}

	return c.Status(code).JSON(fiber.Map{"error": msg})
}
