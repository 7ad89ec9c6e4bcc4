package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/rag"
)

// handleQuery answers a single-turn question over the indexed records.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	var req rag.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "prompt is required"})
	}

	answer, err := s.engine.Query(c.Context(), req)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "query failed"})
	}

	return c.JSON(answer)
}

// handleChat answers a conversational turn. An empty prompt is only valid
// together with reset, which wipes the session.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req rag.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Prompt == "" && !req.Reset {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "prompt is required"})
	}

	answer, err := s.engine.Chat(c.Context(), req)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "chat failed"})
	}

	return c.JSON(answer)
}

// handleRecords returns recent chunks without ranking or generation.
func (s *Server) handleRecords(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid limit"})
		}
		limit = parsed
	}

	chunks, err := s.engine.Records(c.Context(), rag.RecordsRequest{
		PatientSeq: c.Query("patient_seq"),
		SourceKind: c.Query("source_kind"),
		Limit:      limit,
	})
	if err != nil {
		s.logger.Error("records fetch failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "records fetch failed"})
	}

	return c.JSON(fiber.Map{
		"count":   len(chunks),
		"records": chunks,
	})
}
