package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQdrantGenerationFlip(t *testing.T) {
	q := &Qdrant{name: "placement_chunks", active: generationName("placement_chunks", "a")}
	assert.Equal(t, "placement_chunks_a", q.active)
	assert.Equal(t, "placement_chunks_b", q.nextGeneration())

	// After a rebuild flips, the next staging side is the one just left.
	q.active = q.nextGeneration()
	assert.Equal(t, "placement_chunks_b", q.active)
	assert.Equal(t, "placement_chunks_a", q.nextGeneration())
}
