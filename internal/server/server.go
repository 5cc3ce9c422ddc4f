package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/time/rate"

	"docmind/internal/auth"
	"docmind/internal/config"
	"docmind/internal/quota"
	"docmind/internal/router"
	"docmind/internal/search"
	"docmind/internal/skill"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 45 * time.Second
	idleTimeout         = 120 * time.Second
	rateLimiterExpiry   = 3 * time.Minute
)

// Deps are the core services the HTTP surface calls into.
type Deps struct {
	Router   *router.Router
	Skills   *skill.Registry
	Quota    *quota.Client
	Search   *search.Aggregator
	Resolver auth.Resolver
}

type Server struct {
	cfg     config.Config
	deps    Deps
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Router == nil {
		return nil, errors.New("router must not be nil")
	}
	if deps.Skills == nil {
		return nil, errors.New("skill registry must not be nil")
	}
	if deps.Quota == nil {
		return nil, errors.New("quota client must not be nil")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: shortuuid.New,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:     cfg,
		deps:    deps,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the echo instance, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)

	v1 := s.app.Group("/v1", s.authenticate)
	if s.cfg.Server.RateLimit > 0 {
		v1.Use(s.rateLimiter())
	}

	v1.POST("/chat", s.handleChat)
	v1.GET("/providers", s.handleListProviders)
	v1.PUT("/providers/preferred", s.handleSetPreferred)
	v1.GET("/skills", s.handleListSkills)
	v1.POST("/skills/select", s.handleSelectSkills)
	v1.POST("/skills/batch", s.handleExecuteBatch)
	v1.POST("/skills/:id/execute", s.handleExecuteSkill)
	v1.GET("/quota", s.handleQuota)
	v1.GET("/usage/stats", s.handleUsageStats)
	v1.POST("/search", s.handleSearch)
}

func (s *Server) rateLimiter() echo.MiddlewareFunc {
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.cfg.Server.RateLimit),
		Burst:     s.cfg.Server.RateBurst,
		ExpiresIn: rateLimiterExpiry,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: limiterStore,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return accountFrom(c).ID, nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return requestError{
				Status:  http.StatusTooManyRequests,
				Message: "rate limit exceeded",
				Type:    "rate_limit_error",
			}
		},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("docmind ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /v1/chat")
	fmt.Println("  GET  /v1/providers")
	fmt.Println("  PUT  /v1/providers/preferred")
	fmt.Println("  GET  /v1/skills")
	fmt.Println("  POST /v1/skills/select")
	fmt.Println("  POST /v1/skills/:id/execute")
	fmt.Println("  POST /v1/skills/batch")
	fmt.Println("  GET  /v1/quota")
	fmt.Println("  GET  /v1/usage/stats")
	fmt.Println("  POST /v1/search")
	fmt.Printf("Example:\n  curl http://%s:%d/v1/chat -H 'Authorization: Bearer <key>' -H 'Content-Type: application/json' -d '{\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}
