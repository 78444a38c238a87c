package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/praxisllmlab/piliangLLM/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	batchKeyPrefix = "piliang:batches:"

	// Persisted runs expire well after any vendor completion window.
	runTTL = 7 * 24 * time.Hour
)

// RedisStore persists submitted batches in a Redis hash per run, one field
// per chunk index.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore creates a store backed by the given Redis client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func runKey(runID string) string { return batchKeyPrefix + runID }

// SaveBatch upserts the batch JSON under its chunk index.
func (s *RedisStore) SaveBatch(ctx context.Context, runID string, chunkIndex int, batch *model.GenericBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	key := runKey(runID)
	if err := s.rdb.HSet(ctx, key, strconv.Itoa(chunkIndex), data).Err(); err != nil {
		return fmt.Errorf("save batch %s: %w", batch.ID, err)
	}
	return s.rdb.Expire(ctx, key, runTTL).Err()
}

// LoadBatches returns all persisted batches for a run, keyed by chunk
// index. A run with no persisted state yields an empty map.
func (s *RedisStore) LoadBatches(ctx context.Context, runID string) (map[int]*model.GenericBatch, error) {
	fields, err := s.rdb.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load batches for run %s: %w", runID, err)
	}

	batches := make(map[int]*model.GenericBatch, len(fields))
	for field, raw := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("malformed chunk index %q for run %s", field, runID)
		}
		var batch model.GenericBatch
		if err := json.Unmarshal([]byte(raw), &batch); err != nil {
			return nil, fmt.Errorf("decode stored batch for chunk %d: %w", idx, err)
		}
		batches[idx] = &batch
	}
	return batches, nil
}

// DeleteRun removes all persisted state for a run.
func (s *RedisStore) DeleteRun(ctx context.Context, runID string) error {
	return s.rdb.Del(ctx, runKey(runID)).Err()
}
