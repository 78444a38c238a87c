// Package tracker aggregates per-chunk outcomes for one driver run and
// optionally persists submitted batches so an interrupted run can re-attach
// to vendor-side jobs instead of resubmitting.
package tracker

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/praxisllmlab/piliangLLM/internal/model"
)

// State classifies a chunk's terminal outcome.
type State string

const (
	// StateSucceeded means every request in the chunk produced a parsed
	// response.
	StateSucceeded State = "succeeded"
	// StatePartial means the chunk finished but some requests failed or
	// had no matching result.
	StatePartial State = "partially_failed"
	// StateLost means the chunk never produced downloadable results:
	// submission failed, the vendor lost the batch, or the retry budget
	// was exhausted.
	StateLost State = "lost"
)

// ChunkResult is the terminal record for one chunk.
type ChunkResult struct {
	Index    int    `json:"index"`
	BatchID  string `json:"batch_id,omitempty"`
	State    State  `json:"state"`
	Requests int    `json:"requests"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// Store persists submitted batches keyed by run and chunk.
type Store interface {
	SaveBatch(ctx context.Context, runID string, chunkIndex int, batch *model.GenericBatch) error
	LoadBatches(ctx context.Context, runID string) (map[int]*model.GenericBatch, error)
	DeleteRun(ctx context.Context, runID string) error
}

// Run tracks one driver run. Safe for concurrent use by chunk goroutines.
type Run struct {
	mu     sync.Mutex
	id     string
	store  Store
	chunks map[int]ChunkResult
}

// NewRun creates a run tracker. An empty id gets a fresh UUID; pass a
// previous run's id to resume it. Store may be nil for memory-only runs.
func NewRun(id string, store Store) *Run {
	if id == "" {
		id = uuid.NewString()
	}
	return &Run{
		id:     id,
		store:  store,
		chunks: make(map[int]ChunkResult),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// RecordBatch persists a submitted batch for later re-attachment. A nil
// store makes this a no-op; persistence failures are reported so the
// caller can log them without aborting the chunk.
func (r *Run) RecordBatch(ctx context.Context, chunkIndex int, batch *model.GenericBatch) error {
	if r.store == nil {
		return nil
	}
	return r.store.SaveBatch(ctx, r.id, chunkIndex, batch)
}

// StoredBatches loads previously persisted batches for this run.
func (r *Run) StoredBatches(ctx context.Context) (map[int]*model.GenericBatch, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.LoadBatches(ctx, r.id)
}

// RecordChunk records a chunk's terminal outcome.
func (r *Run) RecordChunk(res ChunkResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[res.Index] = res
}

// Close removes persisted state for a completed run.
func (r *Run) Close(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.DeleteRun(ctx, r.id)
}

// Summary is the final per-run report distinguishing fully-succeeded,
// partially-failed and lost chunks.
type Summary struct {
	RunID           string        `json:"run_id"`
	Chunks          []ChunkResult `json:"chunks"`
	Succeeded       int           `json:"succeeded"`
	PartiallyFailed int           `json:"partially_failed"`
	Lost            int           `json:"lost"`
}

// Summary builds the final report, chunks in index order.
func (r *Run) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{RunID: r.id}
	for _, res := range r.chunks {
		s.Chunks = append(s.Chunks, res)
		switch res.State {
		case StateSucceeded:
			s.Succeeded++
		case StatePartial:
			s.PartiallyFailed++
		case StateLost:
			s.Lost++
		}
	}
	sort.Slice(s.Chunks, func(i, j int) bool { return s.Chunks[i].Index < s.Chunks[j].Index })
	return s
}
