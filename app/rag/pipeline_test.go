package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"placement-ai/index"
	"placement-ai/model"
	"placement-ai/store"
	"placement-ai/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeDimension = 4

// fakeEmbedder returns pre-registered vectors per exact text, so retrieval
// scores in a test are chosen, not incidental.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	delay   time.Duration
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32)}
}

func (e *fakeEmbedder) set(text string, vec []float32) { e.vectors[text] = vec }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0, 0}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]model.BatchItem, error) {
	items := make([]model.BatchItem, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			items[i].Err = err
			continue
		}
		items[i].Vector = vec
	}
	return items, nil
}

func (e *fakeEmbedder) Dimension() int    { return fakeDimension }
func (e *fakeEmbedder) Signature() string { return "fake/fixed/4" }

type fakeStore struct {
	experiences map[uuid.UUID]types.Experience
}

func newFakeStore(experiences ...types.Experience) *fakeStore {
	s := &fakeStore{experiences: make(map[uuid.UUID]types.Experience)}
	for _, exp := range experiences {
		s.experiences[exp.ID] = exp
	}
	return s
}

func (s *fakeStore) GetExperienceByID(ctx context.Context, id uuid.UUID) (*types.Experience, error) {
	exp, ok := s.experiences[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &exp, nil
}

func (s *fakeStore) GetAllApproved(ctx context.Context) ([]types.Experience, error) {
	all := make([]types.Experience, 0, len(s.experiences))
	for _, exp := range s.experiences {
		all = append(all, exp)
	}
	return all, nil
}

func chunkEntry(expID uuid.UUID, company string, year int, text string, vec []float32) index.Entry {
	return index.Entry{
		Chunk: types.Chunk{
			ID:           uuid.New(),
			ExperienceID: expID,
			Text:         text,
			Company:      company,
			Role:         "SDE Intern",
			Year:         year,
		},
		Vector: vec,
	}
}

func newTestService(t *testing.T, embedder *fakeEmbedder, storer store.ExperienceStorer, entries []index.Entry, timeout time.Duration) *Service {
	t.Helper()
	idx := index.NewMemory(fakeDimension, embedder.Signature())
	if len(entries) > 0 {
		require.NoError(t, idx.Insert(context.Background(), entries))
	}
	retriever, err := NewRetriever(embedder, idx)
	require.NoError(t, err)
	return NewService(retriever, NewSynthesizer(0.25, nil), storer, timeout)
}

func TestQueryFilterExcludesOtherCompanies(t *testing.T) {
	embedder := newFakeEmbedder()
	query := "what questions does google ask"
	queryVec := []float32{1, 0, 0, 0}
	embedder.set(query, queryVec)

	google, amazon := uuid.New(), uuid.New()
	var entries []index.Entry
	for i := 0; i < 4; i++ {
		entries = append(entries,
			chunkEntry(google, "Google", 2024, "Question (dsa, graphs): BFS on a grid", queryVec),
			chunkEntry(amazon, "Amazon", 2023, "Question (dsa, arrays): Two sum variants", queryVec),
		)
	}
	svc := newTestService(t, embedder, newFakeStore(), entries, time.Second)

	result, err := svc.Query(context.Background(), types.QueryParams{
		Query:   query,
		Company: "Google",
		Year:    2024,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, result.State)
	assert.False(t, result.InsufficientEvidence)
	assert.Greater(t, result.Confidence, 0.0)
	require.NotEmpty(t, result.Sources)
	for _, src := range result.Sources {
		assert.Equal(t, "Google", src.Company)
		assert.Equal(t, 2024, src.Year)
		assert.NotEqual(t, amazon.String(), src.ExperienceID)
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	embedder := newFakeEmbedder()
	svc := newTestService(t, embedder, newFakeStore(), nil, time.Second)

	result, err := svc.Query(context.Background(), types.QueryParams{Query: "anything at all"})
	require.NoError(t, err)
	assert.True(t, result.InsufficientEvidence)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, result.Sources)
	assert.Nil(t, result.Trends)
	assert.Equal(t, types.StateCompleted, result.State)
}

func TestQueryRespectsTopK(t *testing.T) {
	embedder := newFakeEmbedder()
	query := "interview experience"
	queryVec := []float32{0, 1, 0, 0}
	embedder.set(query, queryVec)

	var entries []index.Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, chunkEntry(uuid.New(), "Google", 2024, "Round 1: technical - trees", queryVec))
	}
	svc := newTestService(t, embedder, newFakeStore(), entries, time.Second)

	result, err := svc.Query(context.Background(), types.QueryParams{Query: query, TopK: 3})
	require.NoError(t, err)
	assert.Len(t, result.Sources, 3)

	// Default is five.
	result, err = svc.Query(context.Background(), types.QueryParams{Query: query})
	require.NoError(t, err)
	assert.Len(t, result.Sources, 5)
}

func TestQueryTimeout(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.delay = 500 * time.Millisecond
	svc := newTestService(t, embedder, newFakeStore(), nil, 30*time.Millisecond)

	_, err := svc.Query(context.Background(), types.QueryParams{Query: "slow backend"})
	var timeoutErr *types.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, types.StateEmbedding, timeoutErr.Stage)
}

func TestQueryCanceledByCaller(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.delay = time.Millisecond
	svc := newTestService(t, embedder, newFakeStore(), nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Query(ctx, types.QueryParams{Query: "gone caller"})
	require.ErrorIs(t, err, context.Canceled)
	var timeoutErr *types.TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestQueryEmbedderUnavailable(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.err = &types.EmbeddingError{Backend: "fake", Unavailable: true, Err: errors.New("connection refused")}
	svc := newTestService(t, embedder, newFakeStore(), nil, time.Second)

	_, err := svc.Query(context.Background(), types.QueryParams{Query: "dead backend"})
	var embErr *types.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.True(t, embErr.Unavailable)
}

func TestQueryAttachesTrends(t *testing.T) {
	embedder := newFakeEmbedder()
	query := "which companies visit campus"
	queryVec := []float32{0, 0, 1, 0}
	embedder.set(query, queryVec)

	var entries []index.Entry
	for _, company := range []string{"Google", "Amazon", "Meta"} {
		entries = append(entries, chunkEntry(uuid.New(), company, 2024, "General interview notes", queryVec))
	}
	svc := newTestService(t, embedder, newFakeStore(), entries, time.Second)

	result, err := svc.Query(context.Background(), types.QueryParams{Query: query})
	require.NoError(t, err)
	require.NotNil(t, result.Trends)
	assert.Equal(t, 3, result.Trends.TotalExperiences)
	assert.ElementsMatch(t, []string{"Amazon", "Google", "Meta"}, result.Trends.CompaniesMentioned)
}

func TestRetrieverSignatureMismatch(t *testing.T) {
	embedder := newFakeEmbedder()
	idx := index.NewMemory(fakeDimension, "ollama/nomic-embed-text/768")

	_, err := NewRetriever(embedder, idx)
	var idxErr *types.IndexError
	require.ErrorAs(t, err, &idxErr)
}
