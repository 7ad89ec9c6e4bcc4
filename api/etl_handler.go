package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/etl"
)

// IndexRequest triggers an indexing run.
type IndexRequest struct {
	// Models are the source kinds to index. Empty means all.
	Models []string `json:"models,omitempty"`

	// Incremental restricts the run to records not yet marked synced.
	Incremental bool `json:"incremental,omitempty"`

	// Limit bounds records fetched per kind. Zero means no limit.
	Limit int `json:"limit,omitempty"`

	// Async runs the pipeline in the background and returns immediately.
	Async bool `json:"async,omitempty"`
}

// handleIndex runs the ETL pipeline, inline or in the background.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	var req IndexRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	opts := etl.RunOptions{
		Kinds:       req.Models,
		Limit:       req.Limit,
		Incremental: req.Incremental,
	}

	if req.Async {
		// The run outlives the request; it gets its own context.
		go func() {
			if _, err := s.pipeline.Run(context.Background(), opts); err != nil {
				s.logger.Error("background indexing run failed", zap.Error(err))
			}
		}()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status": "started",
			"models": req.Models,
		})
	}

	result, err := s.pipeline.Run(c.Context(), opts)
	if err != nil {
		s.logger.Error("indexing run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "indexing run failed"})
	}

	return c.JSON(result)
}

// handleIndexStatus reports store stats and per-kind watermarks.
func (s *Server) handleIndexStatus(c *fiber.Ctx) error {
	status, err := s.pipeline.Stats(c.Context())
	if err != nil {
		s.logger.Error("index status failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "index status failed"})
	}
	return c.JSON(status)
}
