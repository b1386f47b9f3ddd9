package ingest

import (
	"strings"

	"placement-ai/types"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// Chunker splits a flattened experience document into overlapping spans.
// Size and overlap are in runes; windows prefer to end on a sentence
// boundary when one falls in the second half of the window, so a fact is
// rarely cut mid-sentence, and consecutive chunks share `overlap` runes
// so facts on a boundary survive in at least one chunk whole.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size/2 {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits document and stamps every chunk with the experience's
// filterable metadata. Chunk ids are fresh uuids: re-chunking the same
// experience yields a disjoint id set, which is what makes stale-chunk
// leakage detectable.
func (c *Chunker) Chunk(document string, exp types.Experience) []types.Chunk {
	runes := []rune(document)
	if len(runes) == 0 {
		return nil
	}

	newChunk := func(idx, start, end int) types.Chunk {
		return types.Chunk{
			ID:           uuid.New(),
			ExperienceID: exp.ID,
			Index:        idx,
			Text:         strings.TrimSpace(string(runes[start:end])),
			StartOffset:  start,
			EndOffset:    end,
			Company:      exp.CompanyName,
			Role:         exp.Role,
			Year:         exp.InterviewYear,
		}
	}

	if len(runes) <= c.size {
		return []types.Chunk{newChunk(0, 0, len(runes))}
	}

	var chunks []types.Chunk
	start := 0
	idx := 0
	for start < len(runes) {
		end := start + c.size
		if end < len(runes) {
			if cut := lastSentenceEnd(runes, start, end); cut > start+c.size/2 {
				end = cut + 1
			}
		} else {
			end = len(runes)
		}

		chunk := newChunk(idx, start, end)
		if chunk.Text != "" {
			chunks = append(chunks, chunk)
			idx++
		}

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastSentenceEnd finds the last sentence terminator in runes[start:end),
// or -1 when there is none.
func lastSentenceEnd(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
