// Package rest provides the read-only status API of the master node.
package rest

import (
	"fmt"
	"net"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"yqhp/freq-engine/internal/master"
	"yqhp/freq-engine/pkg/types"
)

// SlaveLister exposes the registry's read-only views.
type SlaveLister interface {
	ListSlaves() []*types.SlaveInfo
	GetSlave(id int64) (*types.SlaveInfo, error)
	Count() int
}

// StatsProvider exposes dispatch statistics.
type StatsProvider interface {
	Snapshot() master.StatsSnapshot
}

// Server represents the status API server.
type Server struct {
	app      *fiber.App
	registry SlaveLister
	stats    StatsProvider
	config   *Config
	log      *zap.Logger
}

// Config holds the configuration for the status API server.
type Config struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewServer creates a new status API server.
func NewServer(registry SlaveLister, stats StatsProvider, config *Config, log *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          customErrorHandler,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		AppName:               "freq-engine status",
		DisableStartupMessage: true,
	})

	server := &Server{
		app:      app,
		registry: registry,
		stats:    stats,
		config:   config,
		log:      log.Named("rest"),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${status} | ${latency} | ${method} ${path}\n",
		Output: zap.NewStdLog(s.log).Writer(),
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)

	api := s.app.Group("/api/v1")
	api.Get("/health", s.healthCheck)
	api.Get("/slaves", s.listSlaves)
	api.Get("/slaves/:id", s.getSlave)
	api.Get("/stats", s.getStats)
}

// Serve serves on an existing listener and blocks until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("Status API listening", zap.String("address", ln.Addr().String()))
	return s.app.Listener(ln)
}

// ShutdownWithTimeout gracefully shuts down the server with a timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors returned by handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
