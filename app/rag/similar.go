package rag

import (
	"context"

	"placement-ai/index"
	"placement-ai/ingest"

	"github.com/google/uuid"
)

// SimilarResult pairs a neighbouring experience with its best chunk
// similarity.
type SimilarResult struct {
	ExperienceID string  `json:"experience_id"`
	Score        float64 `json:"score"`
}

// FindSimilar returns the experiences most similar to the given one,
// one entry per experience, the experience itself excluded. It embeds
// the flattened document the ingestion side indexes, so "similar" means
// similar by the same measure queries use.
func (s *Service) FindSimilar(ctx context.Context, experienceID uuid.UUID, topK int) ([]SimilarResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	exp, err := s.store.GetExperienceByID(ctx, experienceID)
	if err != nil {
		return nil, err
	}

	vec, err := s.retriever.embedder.Embed(ctx, ingest.BuildDocument(*exp))
	if err != nil {
		return nil, err
	}

	// Oversample: several chunks of the same experience will rank high,
	// and the experience's own chunks must be skipped.
	results, err := s.retriever.index.Search(ctx, vec, topK*filterOversample+topK, index.Filter{})
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]struct{}{experienceID: {}}
	similar := make([]SimilarResult, 0, topK)
	for _, r := range results {
		if _, ok := seen[r.Chunk.ExperienceID]; ok {
			continue
		}
		seen[r.Chunk.ExperienceID] = struct{}{}
		similar = append(similar, SimilarResult{
			ExperienceID: r.Chunk.ExperienceID.String(),
			Score:        r.Score,
		})
		if len(similar) >= topK {
			break
		}
	}
	return similar, nil
}

// IndexSize reports the number of entries currently searchable.
func (s *Service) IndexSize(ctx context.Context) (int, error) {
	return s.retriever.index.Size(ctx)
}

// EmbedderInfo reports the pinned embedder signature and dimension.
func (s *Service) EmbedderInfo() (signature string, dimension int) {
	return s.retriever.embedder.Signature(), s.retriever.embedder.Dimension()
}
