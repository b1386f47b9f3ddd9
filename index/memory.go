package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"placement-ai/types"

	"github.com/google/uuid"
)

// Memory is an exact brute-force index. At the corpus sizes of a single
// campus archive (tens of thousands of chunks at most) a linear scan
// beats the operational cost of an approximate structure, and keeps
// results exact and deterministic. Reader-writer discipline: any number
// of concurrent searches, one mutation at a time.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	signature string
	entries   []Entry
	byID      map[uuid.UUID]int
}

func NewMemory(dimension int, signature string) *Memory {
	return &Memory{
		dimension: dimension,
		signature: signature,
		byID:      make(map[uuid.UUID]int),
	}
}

func (m *Memory) Signature() string { return m.signature }

func (m *Memory) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) checkEntries(op string, entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != m.dimension {
			return &types.IndexError{Op: op, Err: fmt.Errorf("vector dimension %d, index expects %d", len(e.Vector), m.dimension)}
		}
		if e.Chunk.ID == uuid.Nil {
			return &types.IndexError{Op: op, Err: fmt.Errorf("chunk without id for experience %s", e.Chunk.ExperienceID)}
		}
	}
	return nil
}

func (m *Memory) Insert(ctx context.Context, entries []Entry) error {
	if err := m.checkEntries("insert", entries); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(entries)
	return nil
}

// insertLocked replaces in place on a known chunk id so insertion order,
// and with it tie-break order, is stable across re-inserts.
func (m *Memory) insertLocked(entries []Entry) {
	for _, e := range entries {
		if pos, ok := m.byID[e.Chunk.ID]; ok {
			m.entries[pos] = e
			continue
		}
		m.byID[e.Chunk.ID] = len(m.entries)
		m.entries = append(m.entries, e)
	}
}

func (m *Memory) ReplaceSource(ctx context.Context, experienceID uuid.UUID, entries []Entry) error {
	if err := m.checkEntries("replace", entries); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(experienceID)
	m.insertLocked(entries)
	return nil
}

func (m *Memory) RemoveBySource(ctx context.Context, experienceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(experienceID)
	return nil
}

func (m *Memory) removeLocked(experienceID uuid.UUID) {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Chunk.ExperienceID != experienceID {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(m.entries) {
		return
	}
	m.entries = kept
	m.byID = make(map[uuid.UUID]int, len(kept))
	for i, e := range kept {
		m.byID[e.Chunk.ID] = i
	}
}

func (m *Memory) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != m.dimension {
		return nil, &types.IndexError{Op: "search", Err: fmt.Errorf("query dimension %d, index expects %d", len(vector), m.dimension)}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.entries))
	for _, e := range m.entries {
		if !filter.Matches(e.Chunk) {
			continue
		}
		results = append(results, Result{Chunk: e.Chunk, Score: dot(e.Vector, vector)})
	}
	// Stable sort keeps insertion order on equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Rebuild validates and stages the new contents before taking the write
// lock, so searches keep serving the old snapshot until the swap.
func (m *Memory) Rebuild(ctx context.Context, entries []Entry) error {
	if err := m.checkEntries("rebuild", entries); err != nil {
		return err
	}
	staged := make([]Entry, 0, len(entries))
	byID := make(map[uuid.UUID]int, len(entries))
	for _, e := range entries {
		if pos, ok := byID[e.Chunk.ID]; ok {
			staged[pos] = e
			continue
		}
		byID[e.Chunk.ID] = len(staged)
		staged = append(staged, e)
	}
	m.mu.Lock()
	m.entries = staged
	m.byID = byID
	m.mu.Unlock()
	return nil
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
