package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/praxisllmlab/piliangLLM/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSummary(t *testing.T) {
	run := NewRun("", nil)
	require.NotEmpty(t, run.ID())

	run.RecordChunk(ChunkResult{Index: 1, BatchID: "b1", State: StatePartial, Requests: 4, Failed: 1})
	run.RecordChunk(ChunkResult{Index: 0, BatchID: "b0", State: StateSucceeded, Requests: 4})
	run.RecordChunk(ChunkResult{Index: 2, State: StateLost, Requests: 2, Error: "batch not found"})

	s := run.Summary()
	assert.Equal(t, run.ID(), s.RunID)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.PartiallyFailed)
	assert.Equal(t, 1, s.Lost)

	// Chunks come back in index order regardless of completion order.
	require.Len(t, s.Chunks, 3)
	assert.Equal(t, 0, s.Chunks[0].Index)
	assert.Equal(t, 2, s.Chunks[2].Index)
}

func TestRunWithoutStoreIsMemoryOnly(t *testing.T) {
	run := NewRun("run-1", nil)

	assert.NoError(t, run.RecordBatch(context.Background(), 0, &model.GenericBatch{ID: "b"}))
	batches, err := run.StoredBatches(context.Background())
	require.NoError(t, err)
	assert.Nil(t, batches)
	assert.NoError(t, run.Close(context.Background()))
}

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Unix(1736000000, 0).UTC()
	batch := &model.GenericBatch{
		ID:          "batch_1",
		RequestFile: "requests.jsonl",
		Status:      model.BatchStatusSubmitted,
		RawStatus:   "in_progress",
		CreatedAt:   &created,
	}

	require.NoError(t, store.SaveBatch(ctx, "run-1", 0, batch))
	require.NoError(t, store.SaveBatch(ctx, "run-1", 3, &model.GenericBatch{ID: "batch_2"}))

	batches, err := store.LoadBatches(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "batch_1", batches[0].ID)
	assert.Equal(t, model.BatchStatusSubmitted, batches[0].Status)
	assert.Equal(t, &created, batches[0].CreatedAt)
	assert.Equal(t, "batch_2", batches[3].ID)
}

func TestRedisStoreUpdateOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBatch(ctx, "run-1", 0, &model.GenericBatch{ID: "b", Status: model.BatchStatusSubmitted}))
	require.NoError(t, store.SaveBatch(ctx, "run-1", 0, &model.GenericBatch{ID: "b", Status: model.BatchStatusFinished}))

	batches, err := store.LoadBatches(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFinished, batches[0].Status)
}

func TestRedisStoreDeleteRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBatch(ctx, "run-1", 0, &model.GenericBatch{ID: "b"}))
	require.NoError(t, store.DeleteRun(ctx, "run-1"))

	batches, err := store.LoadBatches(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestRunPersistsThroughStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := NewRun("run-9", store)
	require.NoError(t, run.RecordBatch(ctx, 1, &model.GenericBatch{ID: "batch_9"}))

	resumed := NewRun("run-9", store)
	batches, err := resumed.StoredBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "batch_9", batches[1].ID)
}
