package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/strata/pkg/facade"
)

// SessionTracker registers sessions for periodic background engine
// runs. Satisfied by the scheduler pool.
type SessionTracker interface {
	Track(sessionID string)
}

// Server is the API server for the memory substrate.
type Server struct {
	config  Config
	memory  *facade.Memory
	logger  *slog.Logger
	app     *fiber.App
	tracker SessionTracker
}

// NewServer creates a new API server. The facade is injected to allow
// sharing with an embedded scheduler.
func NewServer(config Config, memory *facade.Memory, logger *slog.Logger) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultListenAddr
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		memory: memory,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/health", s.handleHealth)

	app.Post("/sessions/:id/turns", s.handleAppendTurn)
	app.Get("/sessions/:id/context", s.handleContextBlock)
	app.Post("/sessions/:id/retrieve", s.handleRetrieve)

	app.Get("/sessions/:id/workspace", s.handleGetWorkspace)
	app.Put("/sessions/:id/workspace", s.handleUpdateWorkspace)

	app.Post("/engines/:name/run", s.handleRunEngine)

	app.Post("/answers", s.handleAnswer)

	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetTracker attaches a session tracker. Every session that stores a
// turn afterwards is registered for periodic background engine runs.
func (s *Server) SetTracker(tracker SessionTracker) {
	s.tracker = tracker
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
