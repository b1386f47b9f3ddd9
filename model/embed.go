package model

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"

	"placement-ai/types"

	"github.com/pkoukk/tiktoken-go"
)

// maxEmbedTokens is the truncation bound applied to every text before it
// is embedded, at ingestion and at query time alike, so both sides of a
// similarity comparison saw the same preprocessing.
const maxEmbedTokens = 512

// tokenizerModel selects the tiktoken vocabulary used for truncation.
const tokenizerModel = "gpt-3.5-turbo"

// BatchItem is one result of EmbedBatch. A batch is atomic per item: a
// rejected text fills Err and leaves the other items intact.
type BatchItem struct {
	Vector []float32
	Err    error
}

// Embedder turns text into a fixed-dimension L2-normalized vector.
// Signature pins the backend, model and dimension; mixing vectors from
// different signatures in one index is a correctness bug.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([]BatchItem, error)
	Dimension() int
	Signature() string
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// prepareText normalizes whitespace and truncates at a token boundary.
// Returns an error when nothing embeddable is left.
func prepareText(text string) (string, error) {
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return "", errors.New("empty text after normalization")
	}
	// A token covers at least one byte, so a short text cannot exceed the
	// token budget and the tokenizer round-trip is skipped.
	if len(text) <= maxEmbedTokens {
		return text, nil
	}
	enc, err := tiktoken.EncodingForModel(tokenizerModel)
	if err != nil {
		return "", err
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxEmbedTokens {
		return text, nil
	}
	return enc.Decode(tokens[:maxEmbedTokens]), nil
}

// normalize scales a vector to unit length so that inner product equals
// cosine similarity.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = float32(float64(x) / norm)
	}
	return vec
}

// badInput wraps an input-side rejection into the embedding taxonomy.
func badInput(backend string, err error) *types.EmbeddingError {
	return &types.EmbeddingError{Backend: backend, Err: err}
}

// backendDown wraps a backend fault into the embedding taxonomy.
func backendDown(backend string, err error) *types.EmbeddingError {
	return &types.EmbeddingError{Backend: backend, Unavailable: true, Err: err}
}
