// Package index defines the nearest-neighbour index over experience
// chunks and its backends. Similarity is inner product over L2-normalized
// vectors (cosine); both the insert and query paths are expected to hand
// in normalized vectors.
package index

import (
	"context"
	"strings"

	"placement-ai/types"

	"github.com/google/uuid"
)

// Filter restricts a search to chunks with matching metadata. Fields are
// a fixed, enumerable set rather than an open map so that filter
// semantics stay testable. Company matches case-insensitively on
// substring; Year matches exactly. Zero values mean "no restriction".
type Filter struct {
	Company string
	Year    int
}

func (f Filter) Empty() bool {
	return f.Company == "" && f.Year == 0
}

func (f Filter) Matches(c types.Chunk) bool {
	if f.Company != "" && !strings.Contains(strings.ToLower(c.Company), strings.ToLower(f.Company)) {
		return false
	}
	if f.Year != 0 && c.Year != f.Year {
		return false
	}
	return true
}

// Entry pairs a chunk with its embedding vector.
type Entry struct {
	Chunk  types.Chunk
	Vector []float32
}

// Result is one search hit. Score is similarity in [-1, 1], in practice
// [0, 1] for natural-language embeddings.
type Result struct {
	Chunk types.Chunk
	Score float64
}

// Index is the shared chunk index. Readers may search concurrently;
// mutations are serialized by the implementation and become visible
// atomically, so a search never observes a half-applied upsert.
type Index interface {
	// Insert adds entries as one atomic batch, replacing any existing
	// entry with the same chunk id.
	Insert(ctx context.Context, entries []Entry) error
	// ReplaceSource atomically removes every entry of the experience and
	// inserts the given ones; the ingestion upsert path uses it so that
	// no reader sees the experience between removal and re-insert.
	ReplaceSource(ctx context.Context, experienceID uuid.UUID, entries []Entry) error
	// RemoveBySource deletes every entry of the experience. Unknown ids
	// are a no-op.
	RemoveBySource(ctx context.Context, experienceID uuid.UUID) error
	// Search returns up to k hits by descending similarity, restricted
	// by filter. Ties break by insertion order.
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error)
	// Rebuild replaces the whole index with entries in one swap; the old
	// contents serve searches until the swap.
	Rebuild(ctx context.Context, entries []Entry) error
	// Size reports the number of entries.
	Size(ctx context.Context) (int, error)
	// Signature is the embedder signature the index was built with.
	Signature() string
}
