package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"

	"placement-ai/index"
	"placement-ai/model"
	"placement-ai/store"
	"placement-ai/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const defaultMaxRetries = 4

type jobKind int

const (
	jobUpsert jobKind = iota
	jobRemove
)

type job struct {
	kind         jobKind
	experienceID uuid.UUID
}

// Pipeline keeps the index current with the experience store. Lifecycle
// events arrive through Enqueue* (fire-and-forget for the caller) and are
// applied by background workers; the caller polls Status to learn whether
// an experience ended up indexed or failed.
//
// Upserts are remove-then-reinsert, staged so an embedding failure leaves
// the previous chunks serving: nothing touches the index until every new
// chunk has a vector. Upserts and removes of the same experience are
// serialized by a per-source lock; a full reindex holds the pipeline gate
// exclusively, so no mutation interleaves with the snapshot-and-swap.
type Pipeline struct {
	logger   *slog.Logger
	embedder model.Embedder
	index    index.Index
	store    store.ExperienceStorer
	chunker  *Chunker

	maxRetries uint64

	statusMu sync.RWMutex
	status   map[uuid.UUID]types.IndexStatus

	// gate is held shared by single-source mutations and exclusively by
	// ReindexAll.
	gate sync.RWMutex

	srcMu    sync.Mutex
	srcLocks map[uuid.UUID]*sourceLock

	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// sourceLock serializes mutations of one experience. refs counts waiters
// so the entry can be dropped once nobody holds or wants it.
type sourceLock struct {
	mu   sync.Mutex
	refs int
}

func NewPipeline(embedder model.Embedder, idx index.Index, storer store.ExperienceStorer, chunker *Chunker) *Pipeline {
	return &Pipeline{
		logger:     slog.Default(),
		embedder:   embedder,
		index:      idx,
		store:      storer,
		chunker:    chunker,
		maxRetries: defaultMaxRetries,
		status:     make(map[uuid.UUID]types.IndexStatus),
		srcLocks:   make(map[uuid.UUID]*sourceLock),
		jobs:       make(chan job, 64),
		quit:       make(chan struct{}),
	}
}

// Start launches the background workers.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

// Stop cancels the workers and waits for in-flight jobs. A mutation that
// already started is never abandoned half-applied; the worker finishes it
// before observing cancellation.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		p.logger.Info("ingest pipeline stopped")
	})
}

func (p *Pipeline) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.handle(ctx, j)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, j job) {
	switch j.kind {
	case jobUpsert:
		exp, err := p.store.GetExperienceByID(ctx, j.experienceID)
		if err != nil {
			log.Printf("[INGEST] load experience %s failed: %v", j.experienceID, err)
			p.setStatus(j.experienceID, types.StatusFailed)
			return
		}
		if err := p.UpsertExperience(ctx, *exp); err != nil {
			log.Printf("[INGEST] upsert %s failed: %v", j.experienceID, err)
		}
	case jobRemove:
		if err := p.RemoveExperience(ctx, j.experienceID); err != nil {
			log.Printf("[INGEST] remove %s failed: %v", j.experienceID, err)
		}
	}
}

// EnqueueUpsert schedules (re)indexing of an experience. After Stop the
// job is dropped and marked failed instead of blocking the caller.
func (p *Pipeline) EnqueueUpsert(experienceID uuid.UUID) {
	p.setStatus(experienceID, types.StatusPending)
	select {
	case <-p.quit:
		p.setStatus(experienceID, types.StatusFailed)
		log.Printf("[INGEST] pipeline stopped, dropping upsert for %s", experienceID)
	case p.jobs <- job{kind: jobUpsert, experienceID: experienceID}:
	}
}

// EnqueueRemove schedules removal of an experience from the index. After
// Stop the job is dropped instead of blocking the caller.
func (p *Pipeline) EnqueueRemove(experienceID uuid.UUID) {
	select {
	case <-p.quit:
		log.Printf("[INGEST] pipeline stopped, dropping remove for %s", experienceID)
	case p.jobs <- job{kind: jobRemove, experienceID: experienceID}:
	}
}

// Status reports the ingestion state of an experience.
func (p *Pipeline) Status(experienceID uuid.UUID) types.IndexStatus {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	if s, ok := p.status[experienceID]; ok {
		return s
	}
	return types.StatusUnknown
}

func (p *Pipeline) setStatus(experienceID uuid.UUID, s types.IndexStatus) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if s == types.StatusUnknown {
		delete(p.status, experienceID)
		return
	}
	p.status[experienceID] = s
}

func (p *Pipeline) lockSource(experienceID uuid.UUID) *sourceLock {
	p.srcMu.Lock()
	l, ok := p.srcLocks[experienceID]
	if !ok {
		l = &sourceLock{}
		p.srcLocks[experienceID] = l
	}
	l.refs++
	p.srcMu.Unlock()
	l.mu.Lock()
	return l
}

func (p *Pipeline) unlockSource(experienceID uuid.UUID, l *sourceLock) {
	l.mu.Unlock()
	p.srcMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(p.srcLocks, experienceID)
	}
	p.srcMu.Unlock()
}

// UpsertExperience synchronously chunks, embeds and replaces the
// experience's entries in the index.
func (p *Pipeline) UpsertExperience(ctx context.Context, exp types.Experience) error {
	p.gate.RLock()
	defer p.gate.RUnlock()
	l := p.lockSource(exp.ID)
	defer p.unlockSource(exp.ID, l)

	doc := BuildDocument(exp)
	chunks := p.chunker.Chunk(doc, exp)
	if len(chunks) == 0 {
		// Nothing embeddable; drop whatever was indexed before.
		if err := p.index.RemoveBySource(ctx, exp.ID); err != nil {
			p.setStatus(exp.ID, types.StatusFailed)
			return err
		}
		p.setStatus(exp.ID, types.StatusIndexed)
		return nil
	}

	entries, err := p.embedChunks(ctx, chunks)
	if err != nil {
		p.setStatus(exp.ID, types.StatusFailed)
		return err
	}

	if err := p.index.ReplaceSource(ctx, exp.ID, entries); err != nil {
		p.setStatus(exp.ID, types.StatusFailed)
		return err
	}
	p.setStatus(exp.ID, types.StatusIndexed)
	log.Printf("[INGEST] indexed experience %s with %d chunks", exp.ID, len(entries))
	return nil
}

// RemoveExperience synchronously purges the experience from the index.
// Unknown ids are a no-op.
func (p *Pipeline) RemoveExperience(ctx context.Context, experienceID uuid.UUID) error {
	p.gate.RLock()
	defer p.gate.RUnlock()
	l := p.lockSource(experienceID)
	defer p.unlockSource(experienceID, l)

	if err := p.index.RemoveBySource(ctx, experienceID); err != nil {
		p.setStatus(experienceID, types.StatusFailed)
		return err
	}
	p.setStatus(experienceID, types.StatusUnknown)
	return nil
}

// embedChunks embeds every chunk, retrying backend faults with bounded
// exponential backoff. Chunks the embedder rejects as bad input are
// dropped individually; a batch that still has no vectors is terminal.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []types.Chunk) ([]index.Entry, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var entries []index.Entry
	op := func() error {
		items, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return backoff.Permanent(err)
		}
		entries = entries[:0]
		for i, item := range items {
			if item.Err != nil {
				if isRetryable(item.Err) {
					return item.Err
				}
				log.Printf("[INGEST] dropping chunk %s: %v", chunks[i].ID, item.Err)
				continue
			}
			entries = append(entries, index.Entry{Chunk: chunks[i], Vector: item.Vector})
		}
		if len(entries) == 0 {
			return backoff.Permanent(errors.New("no chunk produced an embedding"))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	return entries, nil
}

func isRetryable(err error) bool {
	var embErr *types.EmbeddingError
	if errors.As(err, &embErr) {
		return embErr.Unavailable
	}
	return false
}

// ReindexAll rebuilds the whole index from the approved experience set,
// the disaster-recovery path. The current index keeps serving until the
// rebuilt entry set swaps in. Experiences that fail to embed for
// input-side reasons are skipped and logged; a dead embedding backend
// aborts the rebuild.
//
// The gate is held exclusively for the duration: an upsert or remove
// applied between the snapshot read and the swap would be silently
// undone by the swap, so mutations wait and re-apply against the new
// contents.
func (p *Pipeline) ReindexAll(ctx context.Context) error {
	p.gate.Lock()
	defer p.gate.Unlock()

	experiences, err := p.store.GetAllApproved(ctx)
	if err != nil {
		return fmt.Errorf("loading experiences for reindex: %w", err)
	}
	log.Printf("[REINDEX] rebuilding index from %d experiences", len(experiences))

	var all []index.Entry
	indexed := make([]uuid.UUID, 0, len(experiences))
	for _, exp := range experiences {
		doc := BuildDocument(exp)
		chunks := p.chunker.Chunk(doc, exp)
		if len(chunks) == 0 {
			continue
		}
		entries, err := p.embedChunks(ctx, chunks)
		if err != nil {
			if isRetryable(err) || ctx.Err() != nil {
				return err
			}
			log.Printf("[REINDEX] skipping experience %s: %v", exp.ID, err)
			p.setStatus(exp.ID, types.StatusFailed)
			continue
		}
		all = append(all, entries...)
		indexed = append(indexed, exp.ID)
	}

	if err := p.index.Rebuild(ctx, all); err != nil {
		return err
	}
	for _, id := range indexed {
		p.setStatus(id, types.StatusIndexed)
	}
	log.Printf("[REINDEX] complete, %d entries", len(all))
	return nil
}
