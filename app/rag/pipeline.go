package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"placement-ai/index"
	"placement-ai/store"
	"placement-ai/types"
)

const DefaultQueryTimeout = 15 * time.Second
const defaultTopK = 5

// Service orchestrates one query: embed, retrieve, synthesize, respond,
// under a single deadline covering all three stages. It holds no
// per-request state; every call is independent and concurrent-safe.
type Service struct {
	retriever *Retriever
	synth     *Synthesizer
	store     store.ExperienceStorer
	timeout   time.Duration
}

func NewService(retriever *Retriever, synth *Synthesizer, storer store.ExperienceStorer, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Service{
		retriever: retriever,
		synth:     synth,
		store:     storer,
		timeout:   timeout,
	}
}

// Query runs the request state machine:
//
//	received -> embedding -> retrieving -> synthesizing -> completed
//
// ending in failed on a backend error and timed_out when the deadline
// expires, so callers can retry timeouts more aggressively than faults.
func (s *Service) Query(ctx context.Context, params types.QueryParams) (*types.QueryResult, error) {
	start := time.Now()
	topK := params.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	filter := index.Filter{Company: params.Company, Year: params.Year}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state := types.StateEmbedding
	vec, err := s.retriever.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, s.terminal(ctx, state, err)
	}

	state = types.StateRetrieving
	results, err := s.retriever.search(ctx, vec, filter, topK)
	if err != nil {
		return nil, s.terminal(ctx, state, err)
	}

	state = types.StateSynthesizing
	answer, err := s.synth.Synthesize(ctx, params.Query, results)
	if err != nil {
		return nil, s.terminal(ctx, state, err)
	}

	// An insufficient-evidence answer still lists whatever weak matches
	// were found, with confidence 0 marking them as below threshold.
	attributed := answer.Used
	if answer.Insufficient {
		attributed = results
	}
	sources := make([]types.Source, len(attributed))
	for i, r := range attributed {
		sources[i] = types.Source{
			ChunkID:      r.Chunk.ID.String(),
			ExperienceID: r.Chunk.ExperienceID.String(),
			Score:        r.Score,
			Snippet:      Snippet(r.Chunk.Text, 300),
			Company:      r.Chunk.Company,
			Role:         r.Chunk.Role,
			Year:         r.Chunk.Year,
		}
	}

	result := &types.QueryResult{
		Query:                params.Query,
		Company:              params.Company,
		Year:                 params.Year,
		Answer:               answer.Text,
		Sources:              sources,
		Confidence:           answer.Confidence,
		InsufficientEvidence: answer.Insufficient,
		State:                types.StateCompleted,
		LatencyMS:            time.Since(start).Milliseconds(),
		Timestamp:            time.Now(),
	}
	if !answer.Insufficient {
		result.Trends = TrendsFromSources(sources)
	}
	return result, nil
}

// terminal distinguishes a blown deadline and a caller cancellation
// from a backend fault.
func (s *Service) terminal(ctx context.Context, state types.QueryState, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &types.TimeoutError{Stage: state, Deadline: s.timeout}
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("query canceled during %s: %w", state, context.Canceled)
	}
	return err
}
