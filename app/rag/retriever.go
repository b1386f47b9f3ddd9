package rag

import (
	"context"
	"fmt"

	"placement-ai/index"
	"placement-ai/model"
	"placement-ai/types"
)

func signatureMismatch(embedder, idx string) error {
	return fmt.Errorf("embedder signature %q does not match index signature %q", embedder, idx)
}

// filterOversample is how many times k the index is asked for when a
// filter is present. Backends that post-filter would otherwise hand back
// fewer than k matching results.
const filterOversample = 4

// Retriever embeds a question and finds the best-matching chunks. The
// query-side embedder must carry the same signature the index was built
// with; a mismatch would compare vectors from different spaces.
type Retriever struct {
	embedder model.Embedder
	index    index.Index
}

func NewRetriever(embedder model.Embedder, idx index.Index) (*Retriever, error) {
	if embedder.Signature() != idx.Signature() {
		return nil, &types.IndexError{
			Op:  "retriever",
			Err: signatureMismatch(embedder.Signature(), idx.Signature()),
		}
	}
	return &Retriever{embedder: embedder, index: idx}, nil
}

// Retrieve returns up to k chunks by descending similarity, restricted by
// filter.
func (r *Retriever) Retrieve(ctx context.Context, query string, filter index.Filter, k int) ([]index.Result, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.search(ctx, vec, filter, k)
}

func (r *Retriever) search(ctx context.Context, vec []float32, filter index.Filter, k int) ([]index.Result, error) {
	searchK := k
	if !filter.Empty() {
		searchK = k * filterOversample
	}
	results, err := r.index.Search(ctx, vec, searchK, filter)
	if err != nil {
		return nil, err
	}
	// An oversampled search can return more than k.
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
