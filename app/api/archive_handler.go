package api

import (
	"context"

	"placement-ai/app/rag"
	"placement-ai/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ArchiveService is the read-side surface beyond plain queries.
type ArchiveService interface {
	FindSimilar(ctx context.Context, experienceID uuid.UUID, topK int) ([]rag.SimilarResult, error)
	AnalyzeTrends(ctx context.Context, company string, year int) (*rag.TrendReport, error)
	IndexSize(ctx context.Context) (int, error)
	EmbedderInfo() (signature string, dimension int)
}

type ArchiveHandler struct {
	svc ArchiveService
}

func NewArchiveHandler(svc ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{svc: svc}
}

type SimilarResponse struct {
	Similar []rag.SimilarResult `json:"similar"`
}

// HandleSimilar answers GET /api/v1/similar?experience_id=&top_k=.
func (h *ArchiveHandler) HandleSimilar(c *fiber.Ctx) error {
	params := types.SimilarParams{
		ExperienceID: c.Query("experience_id"),
		TopK:         c.QueryInt("top_k"),
	}
	if errs := types.Validate(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}
	id, err := uuid.Parse(params.ExperienceID)
	if err != nil {
		return ErrInvalidID()
	}

	similar, err := h.svc.FindSimilar(c.Context(), id, params.TopK)
	if err != nil {
		return err
	}
	return c.JSON(SimilarResponse{Similar: similar})
}

// HandleTrends answers GET /api/v1/trends?company=&year=.
func (h *ArchiveHandler) HandleTrends(c *fiber.Ctx) error {
	report, err := h.svc.AnalyzeTrends(c.Context(), c.Query("company"), c.QueryInt("year"))
	if err != nil {
		return err
	}
	return c.JSON(report)
}

type StatsResponse struct {
	IndexSize          int    `json:"index_size"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	ModelSignature     string `json:"model_signature"`
}

// HandleStats answers GET /api/v1/stats.
func (h *ArchiveHandler) HandleStats(c *fiber.Ctx) error {
	size, err := h.svc.IndexSize(c.Context())
	if err != nil {
		return err
	}
	signature, dimension := h.svc.EmbedderInfo()
	return c.JSON(StatsResponse{
		IndexSize:          size,
		EmbeddingDimension: dimension,
		ModelSignature:     signature,
	})
}
