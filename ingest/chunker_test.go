package ingest

import (
	"strings"
	"testing"

	"placement-ai/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExperience() types.Experience {
	return types.Experience{
		ID:            uuid.New(),
		CompanyName:   "Google",
		Role:          "SDE Intern",
		InterviewYear: 2024,
	}
}

func TestChunkShortDocument(t *testing.T) {
	c := NewChunker(512, 50)
	exp := testExperience()

	chunks := c.Chunk("Short interview summary.", exp)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Short interview summary.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, exp.ID, chunks[0].ExperienceID)
}

func TestChunkEmptyDocument(t *testing.T) {
	c := NewChunker(512, 50)
	assert.Nil(t, c.Chunk("", testExperience()))
}

func TestChunkSizeBound(t *testing.T) {
	c := NewChunker(100, 20)
	doc := strings.Repeat("The interviewer asked about heaps. ", 40)

	chunks := c.Chunk(doc, testExperience())
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		// Sentence-boundary cuts may run slightly past size, never past
		// size plus the uncut tail of a sentence within the window.
		assert.LessOrEqual(t, ch.EndOffset-ch.StartOffset, 101)
		assert.NotEmpty(t, ch.Text)
	}
}

func TestChunkOverlapAndCoverage(t *testing.T) {
	c := NewChunker(100, 20)
	doc := strings.Repeat("A fact about the interview process at this company. ", 30)
	runes := []rune(doc)

	chunks := c.Chunk(doc, testExperience())
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Less(t, cur.StartOffset, prev.EndOffset, "consecutive chunks must overlap")
		assert.Greater(t, cur.StartOffset, prev.StartOffset, "chunking must make forward progress")
	}
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].EndOffset)
}

func TestChunkStampsMetadata(t *testing.T) {
	c := NewChunker(80, 10)
	exp := testExperience()
	doc := strings.Repeat("Round details and questions. ", 20)

	chunks := c.Chunk(doc, exp)
	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, exp.ID, ch.ExperienceID)
		assert.Equal(t, "Google", ch.Company)
		assert.Equal(t, "SDE Intern", ch.Role)
		assert.Equal(t, 2024, ch.Year)
		assert.Equal(t, i, ch.Index)
		assert.NotEqual(t, uuid.Nil, ch.ID)
	}
}

func TestChunkFreshIDsPerRun(t *testing.T) {
	c := NewChunker(100, 20)
	exp := testExperience()
	doc := strings.Repeat("Identical document text for both runs. ", 10)

	first := c.Chunk(doc, exp)
	second := c.Chunk(doc, exp)
	require.Equal(t, len(first), len(second))

	seen := make(map[uuid.UUID]struct{})
	for _, ch := range first {
		seen[ch.ID] = struct{}{}
	}
	for _, ch := range second {
		_, dup := seen[ch.ID]
		assert.False(t, dup, "re-chunking must mint fresh chunk ids")
	}
}

func TestChunkPrefersSentenceBoundary(t *testing.T) {
	c := NewChunker(60, 10)
	// The sentence end lands in the second half of the first window.
	doc := strings.Repeat("word ", 8) + "End of sentence. More text follows and keeps going past the window edge."

	chunks := c.Chunk(doc, testExperience())
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."), "first cut should land on a sentence end, got %q", chunks[0].Text)
}

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.size)
	assert.Equal(t, DefaultChunkOverlap, c.overlap)

	// Overlap of at least half the size would stall the window.
	c = NewChunker(100, 60)
	assert.Equal(t, DefaultChunkOverlap, c.overlap)
}
