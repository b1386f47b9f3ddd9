package index

import (
	"context"
	"fmt"
	"sync"

	"placement-ai/types"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Qdrant backs the index with a remote Qdrant server. Data lives in one
// of two generation collections, <name>_a or <name>_b; a rebuild loads
// the inactive generation while the active one keeps serving, then flips
// under the write lock and drops the old one. Mutations take the write
// lock and searches the read lock, so within the owning process no
// search observes a half-applied replace or a mid-rebuild state. The
// service instance owns the collections; equal-score ordering follows
// the server rather than insertion order.
type Qdrant struct {
	client    *qdrant.Client
	name      string
	dimension int
	signature string

	mu     sync.RWMutex
	active string
}

func NewQdrant(host string, port int, collection string, dimension int, signature string) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, &types.IndexError{Op: "connect", Err: err}
	}

	q := &Qdrant{
		client:    client,
		name:      collection,
		dimension: dimension,
		signature: signature,
	}
	active, err := q.pickActive(context.Background())
	if err != nil {
		return nil, err
	}
	q.active = active
	return q, nil
}

func generationName(base, suffix string) string { return base + "_" + suffix }

// nextGeneration is the staging collection of a rebuild, the generation
// not currently serving. Callers hold at least the read lock.
func (q *Qdrant) nextGeneration() string {
	if q.active == generationName(q.name, "a") {
		return generationName(q.name, "b")
	}
	return generationName(q.name, "a")
}

// pickActive finds the live generation at startup, creating the first
// one on a fresh server. Both generations existing means a rebuild was
// interrupted; the b side is treated as staging and dropped, and an
// operator re-runs the reindex if the interrupted rebuild had already
// flipped.
func (q *Qdrant) pickActive(ctx context.Context) (string, error) {
	a, b := generationName(q.name, "a"), generationName(q.name, "b")
	existsA, err := q.client.CollectionExists(ctx, a)
	if err != nil {
		return "", &types.IndexError{Op: "init", Err: err}
	}
	existsB, err := q.client.CollectionExists(ctx, b)
	if err != nil {
		return "", &types.IndexError{Op: "init", Err: err}
	}

	switch {
	case existsA && existsB:
		if err := q.client.DeleteCollection(ctx, b); err != nil {
			return "", &types.IndexError{Op: "init", Err: err}
		}
		return a, nil
	case existsA:
		return a, nil
	case existsB:
		return b, nil
	}
	if err := q.createCollection(ctx, a); err != nil {
		return "", err
	}
	return a, nil
}

func (q *Qdrant) createCollection(ctx context.Context, name string) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return &types.IndexError{Op: "init", Err: err}
	}
	return nil
}

func (q *Qdrant) Signature() string { return q.signature }

func (q *Qdrant) Size(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.active,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, &types.IndexError{Op: "count", Err: err}
	}
	return int(count), nil
}

func (q *Qdrant) Insert(ctx context.Context, entries []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.upsert(ctx, q.active, entries)
}

func (q *Qdrant) upsert(ctx context.Context, collection string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		if len(e.Vector) != q.dimension {
			return &types.IndexError{Op: "insert", Err: fmt.Errorf("vector dimension %d, collection expects %d", len(e.Vector), q.dimension)}
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.Chunk.ID.String()),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: chunkPayload(e.Chunk),
		}
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return &types.IndexError{Op: "insert", Err: err}
	}
	return nil
}

func (q *Qdrant) ReplaceSource(ctx context.Context, experienceID uuid.UUID, entries []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.deleteBySource(ctx, q.active, experienceID); err != nil {
		return err
	}
	return q.upsert(ctx, q.active, entries)
}

func (q *Qdrant) RemoveBySource(ctx context.Context, experienceID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deleteBySource(ctx, q.active, experienceID)
}

func (q *Qdrant) deleteBySource(ctx context.Context, collection string, experienceID uuid.UUID) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("experience_id", experienceID.String()),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return &types.IndexError{Op: "remove", Err: err}
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	var conditions []*qdrant.Condition
	if filter.Company != "" {
		conditions = append(conditions, qdrant.NewMatchText("company", filter.Company))
	}
	if filter.Year != 0 {
		conditions = append(conditions, qdrant.NewMatchInt("year", int64(filter.Year)))
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	query := &qdrant.QueryPoints{
		CollectionName: q.active,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(conditions) > 0 {
		query.Filter = &qdrant.Filter{Must: conditions}
	}
	hits, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, &types.IndexError{Op: "search", Err: err}
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		chunk, err := chunkFromPayload(hit.Id.GetUuid(), hit.Payload)
		if err != nil {
			return nil, &types.IndexError{Op: "search", Err: err}
		}
		results = append(results, Result{Chunk: chunk, Score: float64(hit.Score)})
	}
	return results, nil
}

// Rebuild loads the staging generation while the active one keeps
// serving, then flips. The old generation is dropped after the flip; if
// the drop fails, the next startup or rebuild clears it.
func (q *Qdrant) Rebuild(ctx context.Context, entries []Entry) error {
	q.mu.RLock()
	staging := q.nextGeneration()
	q.mu.RUnlock()

	exists, err := q.client.CollectionExists(ctx, staging)
	if err != nil {
		return &types.IndexError{Op: "rebuild", Err: err}
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, staging); err != nil {
			return &types.IndexError{Op: "rebuild", Err: err}
		}
	}
	if err := q.createCollection(ctx, staging); err != nil {
		return err
	}
	if err := q.upsert(ctx, staging, entries); err != nil {
		return err
	}

	q.mu.Lock()
	old := q.active
	q.active = staging
	q.mu.Unlock()

	if err := q.client.DeleteCollection(ctx, old); err != nil {
		return &types.IndexError{Op: "rebuild", Err: err}
	}
	return nil
}

func chunkPayload(c types.Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"experience_id": qdrant.NewValueString(c.ExperienceID.String()),
		"chunk_index":   qdrant.NewValueInt(int64(c.Index)),
		"text":          qdrant.NewValueString(c.Text),
		"company":       qdrant.NewValueString(c.Company),
		"role":          qdrant.NewValueString(c.Role),
		"year":          qdrant.NewValueInt(int64(c.Year)),
		"start_offset":  qdrant.NewValueInt(int64(c.StartOffset)),
		"end_offset":    qdrant.NewValueInt(int64(c.EndOffset)),
	}
}

func chunkFromPayload(id string, payload map[string]*qdrant.Value) (types.Chunk, error) {
	chunkID, err := uuid.Parse(id)
	if err != nil {
		return types.Chunk{}, fmt.Errorf("bad point id %q: %w", id, err)
	}
	expID, err := uuid.Parse(payload["experience_id"].GetStringValue())
	if err != nil {
		return types.Chunk{}, fmt.Errorf("bad experience_id on point %s: %w", id, err)
	}
	return types.Chunk{
		ID:           chunkID,
		ExperienceID: expID,
		Index:        int(payload["chunk_index"].GetIntegerValue()),
		Text:         payload["text"].GetStringValue(),
		Company:      payload["company"].GetStringValue(),
		Role:         payload["role"].GetStringValue(),
		Year:         int(payload["year"].GetIntegerValue()),
		StartOffset:  int(payload["start_offset"].GetIntegerValue()),
		EndOffset:    int(payload["end_offset"].GetIntegerValue()),
	}, nil
}
