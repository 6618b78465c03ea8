package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/engine"
)

// Server is the API server for driving and querying the memory engine.
type Server struct {
	config Config
	engine *engine.MemoryEngine
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The engine is injected to allow
// sharing with other surfaces (e.g., the MCP server).
func NewServer(config Config, eng *engine.MemoryEngine, logger *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, errors.New("memory engine is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: eng,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/chats/:chat_id/messages", s.handleIngest)
	v1.Post("/chats/:chat_id/lifecycle", s.handleLifecycle)
	v1.Post("/chats/:chat_id/summarize", s.handleSummarize)
	v1.Post("/chats/:chat_id/recall", s.handleRecall)
	v1.Post("/chats/:chat_id/memory", s.handleBuildMemory)
	v1.Post("/chats/:chat_id/anchors", s.handleExtractAnchors)
	v1.Get("/chats/:chat_id/status", s.handleStatus)
	v1.Post("/chats/:chat_id/vectors/rebuild", s.handleRebuildVectors)
	v1.Get("/chats/:chat_id/archive", s.handleExport)
	v1.Put("/chats/:chat_id/archive", s.handleImport)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
