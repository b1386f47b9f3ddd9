package api

import (
	"context"

	"placement-ai/store"
	"placement-ai/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Ingestor is the ingestion surface the handler needs.
type Ingestor interface {
	EnqueueUpsert(experienceID uuid.UUID)
	EnqueueRemove(experienceID uuid.UUID)
	Status(experienceID uuid.UUID) types.IndexStatus
	ReindexAll(ctx context.Context) error
}

type EmbedHandler struct {
	pipeline Ingestor
	store    store.ExperienceStorer
}

func NewEmbedHandler(pipeline Ingestor, storer store.ExperienceStorer) *EmbedHandler {
	return &EmbedHandler{pipeline: pipeline, store: storer}
}

type EmbedResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ExperienceID string `json:"experience_id,omitempty"`
}

// HandleEmbed answers POST /api/v1/embed: verify the experience exists,
// then index it in the background. The caller polls HandleStatus.
func (h *EmbedHandler) HandleEmbed(c *fiber.Ctx) error {
	var params types.EmbedParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := types.Validate(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}
	id, err := uuid.Parse(params.ExperienceID)
	if err != nil {
		return ErrInvalidID()
	}

	if _, err := h.store.GetExperienceByID(c.Context(), id); err != nil {
		return err
	}

	h.pipeline.EnqueueUpsert(id)
	return c.JSON(EmbedResponse{
		Success:      true,
		Message:      "embedding generation started",
		ExperienceID: id.String(),
	})
}

// HandleRemove answers DELETE /api/v1/embed/:experience_id. Removing an
// id with no entries succeeds; the operation is idempotent.
func (h *EmbedHandler) HandleRemove(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experience_id"))
	if err != nil {
		return ErrInvalidID()
	}
	h.pipeline.EnqueueRemove(id)
	return c.JSON(EmbedResponse{Success: true, Message: "embedding removal started"})
}

type StatusResponse struct {
	ExperienceID string            `json:"experience_id"`
	Status       types.IndexStatus `json:"status"`
}

// HandleStatus answers GET /api/v1/embed/:experience_id/status.
func (h *EmbedHandler) HandleStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experience_id"))
	if err != nil {
		return ErrInvalidID()
	}
	return c.JSON(StatusResponse{
		ExperienceID: id.String(),
		Status:       h.pipeline.Status(id),
	})
}

// HandleReindex answers POST /api/v1/reindex, the admin full rebuild.
// It runs synchronously; the old index serves searches until the swap.
func (h *EmbedHandler) HandleReindex(c *fiber.Ctx) error {
	if err := h.pipeline.ReindexAll(c.Context()); err != nil {
		return err
	}
	return c.JSON(EmbedResponse{Success: true, Message: "reindexing complete"})
}
