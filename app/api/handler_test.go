package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"placement-ai/app/rag"
	"placement-ai/store"
	"placement-ai/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQueryService struct {
	result *types.QueryResult
	err    error
}

func (s *stubQueryService) Query(ctx context.Context, params types.QueryParams) (*types.QueryResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubArchiveService struct {
	similar []rag.SimilarResult
	report  *rag.TrendReport
	size    int
	sizeErr error
}

func (s *stubArchiveService) FindSimilar(ctx context.Context, experienceID uuid.UUID, topK int) ([]rag.SimilarResult, error) {
	return s.similar, nil
}

func (s *stubArchiveService) AnalyzeTrends(ctx context.Context, company string, year int) (*rag.TrendReport, error) {
	return s.report, nil
}

func (s *stubArchiveService) IndexSize(ctx context.Context) (int, error) {
	return s.size, s.sizeErr
}

func (s *stubArchiveService) EmbedderInfo() (string, int) {
	return "local/hashing/64", 64
}

type stubIngestor struct {
	upserts []uuid.UUID
	removes []uuid.UUID
	status  types.IndexStatus
}

func (s *stubIngestor) EnqueueUpsert(id uuid.UUID)            { s.upserts = append(s.upserts, id) }
func (s *stubIngestor) EnqueueRemove(id uuid.UUID)            { s.removes = append(s.removes, id) }
func (s *stubIngestor) Status(id uuid.UUID) types.IndexStatus { return s.status }
func (s *stubIngestor) ReindexAll(ctx context.Context) error  { return nil }

type stubExperienceStore struct {
	known map[uuid.UUID]bool
}

func (s *stubExperienceStore) GetExperienceByID(ctx context.Context, id uuid.UUID) (*types.Experience, error) {
	if !s.known[id] {
		return nil, store.ErrNotFound
	}
	return &types.Experience{ID: id}, nil
}

func (s *stubExperienceStore) GetAllApproved(ctx context.Context) ([]types.Experience, error) {
	return nil, nil
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestHandleQuery(t *testing.T) {
	svc := &stubQueryService{result: &types.QueryResult{
		Query:      "google interviews",
		Answer:     "Based on interview experiences...",
		Confidence: 0.7,
		State:      types.StateCompleted,
	}}
	app := newTestApp()
	app.Post("/query", NewRequestHandler(svc).HandleQuery)

	resp, raw := doJSON(t, app, http.MethodPost, "/query", types.QueryParams{Query: "google interviews"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result types.QueryResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "google interviews", result.Query)
	assert.Equal(t, types.StateCompleted, result.State)
}

func TestHandleQueryValidation(t *testing.T) {
	app := newTestApp()
	app.Post("/query", NewRequestHandler(&stubQueryService{}).HandleQuery)

	tests := []struct {
		name   string
		params types.QueryParams
	}{
		{"too short", types.QueryParams{Query: "hi"}},
		{"missing", types.QueryParams{}},
		{"bad year", types.QueryParams{Query: "valid question", Year: 1990}},
		{"bad top_k", types.QueryParams{Query: "valid question", TopK: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := doJSON(t, app, http.MethodPost, "/query", tt.params)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			var ve ValidationError
			require.NoError(t, json.Unmarshal(raw, &ve))
			assert.Equal(t, CodeValidation, ve.ErrCode)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestHandleQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "embedding backend down",
			err:        &types.EmbeddingError{Backend: "ollama", Unavailable: true, Err: errors.New("refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeEmbeddingUnavailable,
		},
		{
			name:       "generation backend down",
			err:        &types.SynthesisError{Unavailable: true, Err: errors.New("refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeGenerationUnavailable,
		},
		{
			name:       "deadline expired",
			err:        &types.TimeoutError{Stage: types.StateRetrieving, Deadline: time.Second},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   CodeTimeout,
		},
		{
			name:       "client disconnect",
			err:        fmt.Errorf("query canceled during embedding: %w", context.Canceled),
			wantStatus: statusClientClosedRequest,
			wantCode:   CodeCanceled,
		},
		{
			name:       "index fault",
			err:        &types.IndexError{Op: "search", Err: errors.New("corrupt")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeIndexError,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp()
			app.Post("/query", NewRequestHandler(&stubQueryService{err: tt.err}).HandleQuery)

			resp, raw := doJSON(t, app, http.MethodPost, "/query", types.QueryParams{Query: "valid question"})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var apiErr Error
			require.NoError(t, json.Unmarshal(raw, &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.ErrCode)
		})
	}
}

func TestHandleEmbed(t *testing.T) {
	id := uuid.New()
	ingestor := &stubIngestor{}
	storer := &stubExperienceStore{known: map[uuid.UUID]bool{id: true}}
	app := newTestApp()
	app.Post("/embed", NewEmbedHandler(ingestor, storer).HandleEmbed)

	resp, raw := doJSON(t, app, http.MethodPost, "/embed", types.EmbedParams{ExperienceID: id.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var er EmbedResponse
	require.NoError(t, json.Unmarshal(raw, &er))
	assert.True(t, er.Success)
	require.Len(t, ingestor.upserts, 1)
	assert.Equal(t, id, ingestor.upserts[0])
}

func TestHandleEmbedUnknownExperience(t *testing.T) {
	ingestor := &stubIngestor{}
	storer := &stubExperienceStore{known: map[uuid.UUID]bool{}}
	app := newTestApp()
	app.Post("/embed", NewEmbedHandler(ingestor, storer).HandleEmbed)

	resp, _ := doJSON(t, app, http.MethodPost, "/embed", types.EmbedParams{ExperienceID: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, ingestor.upserts)
}

func TestHandleEmbedInvalidID(t *testing.T) {
	app := newTestApp()
	app.Post("/embed", NewEmbedHandler(&stubIngestor{}, &stubExperienceStore{}).HandleEmbed)

	resp, _ := doJSON(t, app, http.MethodPost, "/embed", types.EmbedParams{ExperienceID: "not-a-uuid"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHandleRemoveAndStatus(t *testing.T) {
	id := uuid.New()
	ingestor := &stubIngestor{status: types.StatusIndexed}
	app := newTestApp()
	h := NewEmbedHandler(ingestor, &stubExperienceStore{})
	app.Delete("/embed/:experience_id", h.HandleRemove)
	app.Get("/embed/:experience_id/status", h.HandleStatus)

	resp, _ := doJSON(t, app, http.MethodDelete, "/embed/"+id.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ingestor.removes, 1)

	resp, raw := doJSON(t, app, http.MethodGet, "/embed/"+id.String()+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sr StatusResponse
	require.NoError(t, json.Unmarshal(raw, &sr))
	assert.Equal(t, types.StatusIndexed, sr.Status)
}

func TestHandleSimilar(t *testing.T) {
	svc := &stubArchiveService{similar: []rag.SimilarResult{{ExperienceID: uuid.NewString(), Score: 0.9}}}
	app := newTestApp()
	app.Get("/similar", NewArchiveHandler(svc).HandleSimilar)

	resp, raw := doJSON(t, app, http.MethodGet, "/similar?experience_id="+uuid.NewString()+"&top_k=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sr SimilarResponse
	require.NoError(t, json.Unmarshal(raw, &sr))
	assert.Len(t, sr.Similar, 1)

	resp, _ = doJSON(t, app, http.MethodGet, "/similar", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHandleStats(t *testing.T) {
	svc := &stubArchiveService{size: 42}
	app := newTestApp()
	app.Get("/stats", NewArchiveHandler(svc).HandleStats)

	resp, raw := doJSON(t, app, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(raw, &stats))
	assert.Equal(t, 42, stats.IndexSize)
	assert.Equal(t, 64, stats.EmbeddingDimension)
	assert.Equal(t, "local/hashing/64", stats.ModelSignature)
}

func TestHandleHealthy(t *testing.T) {
	app := newTestApp()
	app.Get("/healthy", NewCheckHandler(&stubArchiveService{size: 7}).HandleHealthy)

	resp, raw := doJSON(t, app, http.MethodGet, "/healthy", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 7, body["index_size"])

	app = newTestApp()
	app.Get("/healthy", NewCheckHandler(&stubArchiveService{sizeErr: errors.New("index down")}).HandleHealthy)
	_, raw = doJSON(t, app, http.MethodGet, "/healthy", nil)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "degraded", body["status"])
}
