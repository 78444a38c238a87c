// Package driver orchestrates one logical collection of requests across
// one or more vendor batches: partition, submit, poll, download, parse,
// reassemble.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/praxisllmlab/piliangLLM/internal/model"
	"github.com/praxisllmlab/piliangLLM/internal/processor"
	"github.com/praxisllmlab/piliangLLM/internal/tracker"
)

const (
	defaultPollInterval    = 60 * time.Second
	defaultRetrieveRetries = 3

	cancelTimeout = 30 * time.Second
)

// Config tunes one driver instance. The zero value gets sensible defaults.
type Config struct {
	// PollInterval is the backoff between status-polling attempts.
	PollInterval time.Duration

	// RetrieveRetries is the budget of consecutive transient retrieval
	// failures tolerated per batch before the chunk is abandoned.
	RetrieveRetries int

	// Metadata is passed to the backend on submission. The
	// processor.MetadataRequestFile key is propagated into
	// GenericBatch.RequestFile.
	Metadata map[string]string

	// Store, when set, persists submitted batches so Resume can re-attach
	// after an interruption.
	Store tracker.Store

	// Clock is injectable for tests; nil means the system clock.
	Clock Clock
}

// Driver drives request collections through one backend adapter.
type Driver struct {
	proc  processor.BatchProcessor
	cfg   Config
	clock Clock
}

// New creates a driver for the given backend adapter.
func New(proc processor.BatchProcessor, cfg Config) *Driver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RetrieveRetries <= 0 {
		cfg.RetrieveRetries = defaultRetrieveRetries
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Driver{proc: proc, cfg: cfg, clock: clock}
}

// Run drives the whole collection to completion and returns one response
// per request, in original submission order. Chunk-level failures never
// abort sibling chunks; their requests surface placeholder error responses
// at their original indices. The summary classifies every chunk.
func (d *Driver) Run(ctx context.Context, requests []*model.GenericRequest) ([]*model.GenericResponse, tracker.Summary, error) {
	run := tracker.NewRun("", d.cfg.Store)
	return d.process(ctx, requests, run, nil)
}

// Resume re-attaches to a previous run's persisted batches. Chunks whose
// batch was already submitted are never resubmitted: in-progress batches
// go back to polling, finished ones straight to download.
func (d *Driver) Resume(ctx context.Context, requests []*model.GenericRequest, runID string) ([]*model.GenericResponse, tracker.Summary, error) {
	run := tracker.NewRun(runID, d.cfg.Store)
	stored, err := run.StoredBatches(ctx)
	if err != nil {
		return nil, run.Summary(), fmt.Errorf("load stored batches: %w", err)
	}
	return d.process(ctx, requests, run, stored)
}

func (d *Driver) process(ctx context.Context, requests []*model.GenericRequest, run *tracker.Run, stored map[int]*model.GenericBatch) ([]*model.GenericResponse, tracker.Summary, error) {
	if len(requests) == 0 {
		return nil, run.Summary(), nil
	}

	chunks, err := partition(d.proc, requests)
	if err != nil {
		return nil, run.Summary(), err
	}
	for _, c := range chunks {
		if b, ok := stored[c.index]; ok {
			c.existing = b
		}
	}

	log.Printf("[%s] run %s: %d requests in %d chunks", d.proc.Backend(), run.ID(), len(requests), len(chunks))

	results := make([]*model.GenericResponse, len(requests))
	done := make(chan struct{}, len(chunks))
	for _, c := range chunks {
		go func(c *chunk) {
			defer func() { done <- struct{}{} }()
			d.processChunk(ctx, run, c, results)
		}(c)
	}
	for range chunks {
		<-done
	}

	if err := ctx.Err(); err != nil {
		return nil, run.Summary(), err
	}
	return results, run.Summary(), nil
}

// processChunk drives one chunk to a terminal state and fills its slots in
// the shared results slice. Each chunk owns disjoint slots, so no locking
// is needed across chunk goroutines.
func (d *Driver) processChunk(ctx context.Context, run *tracker.Run, c *chunk, results []*model.GenericResponse) {
	backend := d.proc.Backend()

	batch := c.existing
	if batch == nil {
		b, err := d.proc.SubmitBatch(ctx, c.wire, d.cfg.Metadata)
		if err != nil {
			d.failChunk(run, c, results, "", err)
			return
		}
		batch = b
		if err := run.RecordBatch(ctx, c.index, batch); err != nil {
			log.Printf("warn: [%s] persist batch %s: %v", backend, batch.ID, err)
		}
		log.Printf("[%s] chunk %d submitted as batch %s (key ...%s, %d requests)",
			backend, c.index, batch.ID, batch.APIKeySuffix, c.size())
	} else {
		log.Printf("[%s] chunk %d re-attached to batch %s (status %s)",
			backend, c.index, batch.ID, batch.RawStatus)
	}

	final := batch
	if !final.Finished() {
		f, err := d.poll(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				d.cancelAsync(batch)
			}
			d.failChunk(run, c, results, batch.ID, err)
			return
		}
		final = f
		if err := run.RecordBatch(ctx, c.index, final); err != nil {
			log.Printf("warn: [%s] persist batch %s: %v", backend, final.ID, err)
		}
	}

	if final.Finished() && !final.RequestCounts.Conserved() {
		log.Printf("warn: [%s] batch %s request counts not conserved: %d succeeded + %d failed != %d total",
			backend, final.ID, final.RequestCounts.Succeeded, final.RequestCounts.Failed, final.RequestCounts.Total)
	}

	raws, err := d.proc.DownloadBatch(ctx, final)
	if err != nil {
		if ctx.Err() != nil {
			d.cancelAsync(final)
		}
		d.failChunk(run, c, results, final.ID, fmt.Errorf("download: %w", err))
		return
	}

	failed := d.collect(c, final, raws, results)

	state := tracker.StateSucceeded
	if failed > 0 {
		state = tracker.StatePartial
	}
	run.RecordChunk(tracker.ChunkResult{
		Index:    c.index,
		BatchID:  final.ID,
		State:    state,
		Requests: c.size(),
		Failed:   failed,
	})
	log.Printf("[%s] chunk %d finished: %d/%d requests succeeded", backend, c.index, c.size()-failed, c.size())
}

// poll waits out the backoff interval and refreshes batch status until the
// batch finishes, is reported lost, or the retry budget runs out.
func (d *Driver) poll(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error) {
	backend := d.proc.Backend()
	current := batch
	failures := 0

	for {
		due := d.clock.Now().Add(d.cfg.PollInterval)
		log.Printf("[%s] batch %s status %q, next poll due %s",
			backend, current.ID, current.RawStatus, due.Format(time.RFC3339))

		if err := d.clock.Sleep(ctx, d.cfg.PollInterval); err != nil {
			return nil, err
		}

		updated, err := d.proc.RetrieveBatch(ctx, current)
		if err != nil {
			failures++
			log.Printf("warn: [%s] retrieve batch %s failed (%d/%d): %v",
				backend, current.ID, failures, d.cfg.RetrieveRetries, err)
			if failures >= d.cfg.RetrieveRetries {
				return nil, fmt.Errorf("retrieve retry budget exhausted: %w", err)
			}
			continue
		}
		failures = 0

		if updated == nil {
			return nil, model.ErrBatchNotFound
		}
		current = updated

		if current.Finished() {
			return current, nil
		}
	}
}

// collect parses downloaded results back onto the chunk's requests,
// matching strictly by the echoed correlation identifier. Requests with no
// matching result get a MissingResultError placeholder. Returns the number
// of failed responses.
func (d *Driver) collect(c *chunk, batch *model.GenericBatch, raws []json.RawMessage, results []*model.GenericResponse) int {
	byID := make(map[string]json.RawMessage, len(raws))
	for _, raw := range raws {
		var envelope struct {
			CustomID string `json:"custom_id"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.CustomID == "" {
			log.Printf("warn: [%s] batch %s: result without custom_id skipped", d.proc.Backend(), batch.ID)
			continue
		}
		byID[envelope.CustomID] = raw
	}

	failed := 0
	for i, req := range c.requests {
		var resp *model.GenericResponse

		raw, ok := byID[strconv.Itoa(req.OriginalRowIdx)]
		if !ok {
			err := &model.MissingResultError{OriginalRowIdx: req.OriginalRowIdx, BatchID: batch.ID}
			resp = placeholder(req, batch, err.Error())
		} else {
			parsed, err := d.proc.ParseResponse(raw, req, batch)
			if err != nil {
				resp = placeholder(req, batch, err.Error())
			} else {
				resp = parsed
			}
		}

		if !resp.Succeeded() {
			failed++
		}
		results[c.positions[i]] = resp
	}
	return failed
}

// failChunk records a lost chunk and fills its slots with placeholder
// error responses so no row position is ever dropped from the output.
func (d *Driver) failChunk(run *tracker.Run, c *chunk, results []*model.GenericResponse, batchID string, err error) {
	log.Printf("[%s] chunk %d lost: %v", d.proc.Backend(), c.index, err)
	for i, req := range c.requests {
		results[c.positions[i]] = placeholder(req, nil, err.Error())
	}
	run.RecordChunk(tracker.ChunkResult{
		Index:    c.index,
		BatchID:  batchID,
		State:    tracker.StateLost,
		Requests: c.size(),
		Failed:   c.size(),
		Error:    err.Error(),
	})
}

// cancelAsync issues a best-effort vendor-side cancellation without
// waiting for confirmation.
func (d *Driver) cancelAsync(batch *model.GenericBatch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		if _, err := d.proc.CancelBatch(ctx, batch); err != nil {
			log.Printf("warn: [%s] cancel batch %s: %v", d.proc.Backend(), batch.ID, err)
		}
	}()
}

func placeholder(req *model.GenericRequest, batch *model.GenericBatch, reason string) *model.GenericResponse {
	resp := &model.GenericResponse{
		GenericRequest: req,
		ResponseErrors: []string{reason},
	}
	if batch != nil {
		resp.CreatedAt = batch.CreatedAt
		resp.FinishedAt = batch.FinishedAt
	}
	return resp
}
