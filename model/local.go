package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// LocalEmbedder is a deterministic feature-hashing embedder that needs no
// external backend. Tokens are hashed into a fixed number of buckets with
// a signed trick to reduce collisions, then L2-normalized. Retrieval
// quality is far below a neural model; it exists for offline development
// and for tests, where bit-identical vectors per input matter.
type LocalEmbedder struct {
	dimension int
}

var localTokenRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\d+`)

func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &LocalEmbedder{dimension: dimension}
}

func (e *LocalEmbedder) Dimension() int { return e.dimension }

func (e *LocalEmbedder) Signature() string {
	return fmt.Sprintf("local/hashing/%d", e.dimension)
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	prepared, err := prepareText(text)
	if err != nil {
		return nil, badInput("local", err)
	}
	vec := make([]float32, e.dimension)
	tokens := localTokenRe.FindAllString(strings.ToLower(prepared), -1)
	if len(tokens) == 0 {
		return nil, badInput("local", fmt.Errorf("no tokens in %q", prepared))
	}
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := int(sum % uint32(e.dimension))
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}
	return normalize(vec), nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]BatchItem, error) {
	items := make([]BatchItem, len(texts))
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
