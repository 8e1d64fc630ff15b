package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/task-tracker-api/config"
	"github.com/example/task-tracker-api/modules/audit"
	"github.com/example/task-tracker-api/modules/identity"
	"github.com/example/task-tracker-api/modules/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	fiberredis "github.com/gofiber/storage/redis/v3"
)

// APIModule serves the task API over HTTP.
type APIModule struct {
	app            *fiber.App
	addr           string
	rateLimit      config.RateLimitConfig
	identity       identity.IdentityPort
	tasks          task.TaskPort
	activity       audit.ActivityPort
	limiterStorage fiber.Storage
	logger         types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule listening on addr.
func NewModule(addr string, rateLimit config.RateLimitConfig, logger types.Logger) *APIModule {
	return &APIModule{
		addr:      addr,
		rateLimit: rateLimit,
		logger:    logger.WithModule("api"),
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"identity", "task", "audit"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "identity":
		m.identity = identity.NewIdentityAdapter(container)
	case "task":
		m.tasks = task.NewTaskAdapter(container)
	case "audit":
		m.activity = audit.NewActivityAdapter(container)
	}
}

// Start builds the Fiber app and starts listening.
func (m *APIModule) Start(_ context.Context) error {
	app, err := m.newApp()
	if err != nil {
		return err
	}
	m.app = app

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		m.app = nil
		m.closeLimiterStorage()
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started",
		"addr", m.addr,
		"rateLimit", m.rateLimit.Enabled)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.closeLimiterStorage()
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	if m.app == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "HTTP server not started",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"addr": m.addr,
		},
	}
}

// newApp configures middleware and routes.
func (m *APIModule) newApp() (*fiber.App, error) {
	if m.identity == nil || m.tasks == nil || m.activity == nil {
		return nil, errors.New("identity, task and audit dependencies must be set")
	}

	app := fiber.New(fiber.Config{
		AppName:               "Task Tracker API",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	app.Use(fiberrecover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(allowAnyOrigin)
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	handlers := NewHandlers(m.tasks, m.activity, m.logger)

	app.Get("/health", handlers.HealthCheck)

	v1 := app.Group("/api/v1", AuthMiddleware(m.identity, m.logger))
	if m.rateLimit.Enabled {
		limit, err := m.newRateLimiter()
		if err != nil {
			return nil, err
		}
		v1.Use(limit)
	}

	v1.Post("/tasks", handlers.CreateTask)
	v1.Get("/tasks", handlers.ListTasks)
	v1.Get("/tasks/:id", handlers.GetTask)
	v1.Put("/tasks/:id", handlers.UpdateTask)
	v1.Delete("/tasks/:id", handlers.DeleteTask)
	v1.Get("/activity", handlers.GetActivity)

	return app, nil
}

// newRateLimiter limits each caller to rateLimit.Max requests per window.
// Counters live in Redis when a URL is configured so instances share them.
func (m *APIModule) newRateLimiter() (fiber.Handler, error) {
	cfg := limiter.Config{
		Max:        m.rateLimit.Max,
		Expiration: m.rateLimit.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "caller:" + callerID(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(MessageResponse{Message: msgTooManyRequests})
		},
	}

	if m.rateLimit.RedisURL != "" {
		storage, err := newLimiterStorage(m.rateLimit.RedisURL)
		if err != nil {
			return nil, err
		}
		m.limiterStorage = storage
		cfg.Storage = storage
	}

	return limiter.New(cfg), nil
}

// newLimiterStorage connects the Redis limiter storage. The storage panics
// when Redis is unreachable, so the panic is turned into an error.
func newLimiterStorage(url string) (storage fiber.Storage, err error) {
	defer func() {
		if r := recover(); r != nil {
			storage = nil
			err = fmt.Errorf("failed to connect rate limit storage: %v", r)
		}
	}()
	return fiberredis.New(fiberredis.Config{URL: url}), nil
}

func (m *APIModule) closeLimiterStorage() {
	if m.limiterStorage == nil {
		return
	}
	if err := m.limiterStorage.Close(); err != nil {
		m.logger.Warn("Failed to close rate limit storage", "error", err)
	}
	m.limiterStorage = nil
}
