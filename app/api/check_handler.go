package api

import (
	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	svc ArchiveService
}

func NewCheckHandler(svc ArchiveService) *CheckHandler {
	return &CheckHandler{svc: svc}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	size, err := h.svc.IndexSize(c.Context())
	if err != nil {
		return c.JSON(fiber.Map{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "healthy", "index_size": size})
}
