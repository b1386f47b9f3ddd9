package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"placement-ai/types"
)

// OllamaEmbedder produces embeddings through a local Ollama server.
type OllamaEmbedder struct {
	apiURL    string
	model     string
	dimension int
	client    *http.Client
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(apiURL, model string, dimension int) *OllamaEmbedder {
	return &OllamaEmbedder{
		apiURL:    apiURL,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *OllamaEmbedder) Dimension() int { return e.dimension }

func (e *OllamaEmbedder) Signature() string {
	return fmt.Sprintf("ollama/%s/%d", e.model, e.dimension)
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	prepared, err := prepareText(text)
	if err != nil {
		return nil, badInput("ollama", err)
	}

	body, err := json.Marshal(OllamaEmbeddingRequest{Model: e.model, Prompt: prepared})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, backendDown("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, backendDown("ollama", err)
		}
		return nil, badInput("ollama", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backendDown("ollama", err)
	}

	var ollamaResp OllamaEmbeddingResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, backendDown("ollama", fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if len(ollamaResp.Embedding) != e.dimension {
		return nil, backendDown("ollama", fmt.Errorf("model returned dimension %d, want %d", len(ollamaResp.Embedding), e.dimension))
	}

	embedding := make([]float32, len(ollamaResp.Embedding))
	for i, v := range ollamaResp.Embedding {
		embedding[i] = float32(v)
	}
	return normalize(embedding), nil
}

// EmbedBatch embeds texts one by one. A rejected text only marks its own
// item; once the backend itself is down the remaining items are marked
// with the same fault instead of hammering a dead server.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]BatchItem, error) {
	items := make([]BatchItem, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			items[i].Err = err
			if isUnavailable(err) {
				for j := i + 1; j < len(items); j++ {
					items[j].Err = err
				}
				return items, nil
			}
			continue
		}
		items[i].Vector = vec
	}
	return items, nil
}

func isUnavailable(err error) bool {
	var embErr *types.EmbeddingError
	if errors.As(err, &embErr) {
		return embErr.Unavailable
	}
	return false
}
