package api

import (
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/credentials"
	"github.com/clidram/medrag/pkg/etl"
	"github.com/clidram/medrag/pkg/llm"
	"github.com/clidram/medrag/pkg/rag"
)

// Server is the API server for querying indexed clinical records and
// managing the indexing pipeline.
type Server struct {
	config      Config
	engine      *rag.Engine
	pipeline    *etl.Pipeline
	generator   llm.Generator
	credentials *credentials.Manager
	logger      *zap.Logger
	app         *fiber.App
}

// Options carries the server's collaborators. Engine is required; the
// others gate their route groups when nil.
type Options struct {
	// Engine answers query and chat requests.
	Engine *rag.Engine

	// Pipeline serves the indexing endpoints. Optional.
	Pipeline *etl.Pipeline

	// Generator backs the runtime configuration endpoints. Optional.
	Generator llm.Generator

	// Credentials persists runtime key changes. Optional.
	Credentials *credentials.Manager

	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// NewServer creates a new API server. Collaborators are injected to allow
// sharing with the CLI commands.
func NewServer(config Config, opts Options, logger *zap.Logger) (*Server, error) {
	if opts.Engine == nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "rag engine is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:      config,
		engine:      opts.Engine,
		pipeline:    opts.Pipeline,
		generator:   opts.Generator,
		credentials: opts.Credentials,
		logger:      logger,
		app:         app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/rag/query", s.handleQuery)
	v1.Post("/rag/chat", s.handleChat)
	v1.Get("/rag/records", s.handleRecords)

	if s.pipeline != nil {
		v1.Post("/etl/index", s.handleIndex)
		v1.Get("/etl/index-status", s.handleIndexStatus)
	}

	if s.generator != nil {
		v1.Post("/config/api-key", s.handleSetAPIKey)
		v1.Get("/config/status", s.handleConfigStatus)
		v1.Get("/config/models", s.handleListModels)
	}

	if opts.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(opts.MCP))
	}

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

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
