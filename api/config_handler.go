package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetAPIKeyRequest swaps the generation credential at runtime.
type SetAPIKeyRequest struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model,omitempty"`
}

// handleSetAPIKey reconfigures the generator and persists the new key.
func (s *Server) handleSetAPIKey(c *fiber.Ctx) error {
	var req SetAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "api_key is required"})
	}

	if err := s.generator.Reconfigure(req.APIKey, req.Model); err != nil {
		s.logger.Error("generator reconfigure failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "reconfigure failed"})
	}

	if s.credentials != nil {
		if err := s.credentials.SetKey(req.APIKey, req.Model); err != nil {
			// The key is live in the generator; persistence failing only
			// loses it across restarts.
			s.logger.Warn("failed to persist api key", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"status": "updated",
		"model":  s.generator.ActiveModel(),
	})
}

// handleConfigStatus reports the active model and whether a key is set.
func (s *Server) handleConfigStatus(c *fiber.Ctx) error {
	configured := false
	masked := ""
	if s.credentials != nil {
		if key, err := s.credentials.Resolve(); err == nil && key != "" {
			configured = true
			masked = maskKey(key)
		}
	}

	return c.JSON(fiber.Map{
		"provider":           "google",
		"model":              s.generator.ActiveModel(),
		"api_key_configured": configured,
		"api_key":            masked,
	})
}

// handleListModels lists the provider's generation-capable models.
func (s *Server) handleListModels(c *fiber.Ctx) error {
	models, err := s.generator.ListModels(c.Context())
	if err != nil {
		s.logger.Error("model listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "model listing failed"})
	}
	return c.JSON(fiber.Map{
		"models": models,
		"active": s.generator.ActiveModel(),
	})
}

// maskKey hides all but the edges of a credential.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
