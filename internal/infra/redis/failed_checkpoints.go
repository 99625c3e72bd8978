package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/ingester/internal/core/domain"
)

// FailedCheckpointTTL bounds how long an unresolved failure record is kept.
const FailedCheckpointTTL = 7 * 24 * time.Hour

// FailedCheckpointRepo implements storage.FailedCheckpointRepository using Redis.
// Each pipeline has a sorted set of ids scored by sequence number, and each id has a
// JSON payload key.
type FailedCheckpointRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFailedCheckpointRepo creates a new Redis-backed failed checkpoint repository.
func NewFailedCheckpointRepo(client *Client) *FailedCheckpointRepo {
	return &FailedCheckpointRepo{
		rdb: client.rdb,
		ttl: FailedCheckpointTTL,
	}
}

// Key helpers
func queueKey(pipeline string) string {
	return fmt.Sprintf("failed_checkpoints:%s", pipeline)
}

func payloadKey(pipeline, id string) string {
	return fmt.Sprintf("failed_checkpoint:%s:%s", pipeline, id)
}

// Add stores the payload and indexes it by sequence number.
func (r *FailedCheckpointRepo) Add(ctx context.Context, fc *domain.FailedCheckpoint) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal failed checkpoint: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, payloadKey(fc.Pipeline, fc.ID), data, r.ttl)
		pipe.ZAdd(ctx, queueKey(fc.Pipeline), redis.Z{
			Score:  float64(fc.SequenceNumber),
			Member: fc.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add failed checkpoint: %w", err)
	}
	return nil
}

// GetAll retrieves all failed checkpoints, lowest sequence number first. Ids whose
// payload has expired are dropped from the index.
func (r *FailedCheckpointRepo) GetAll(
	ctx context.Context,
	pipeline string,
) ([]*domain.FailedCheckpoint, error) {
	ids, err := r.rdb.ZRange(ctx, queueKey(pipeline), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	out := make([]*domain.FailedCheckpoint, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, payloadKey(pipeline, id)).Bytes()
		if errors.Is(err, redis.Nil) {
			r.rdb.ZRem(ctx, queueKey(pipeline), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get failed checkpoint: %w", err)
		}

		var fc domain.FailedCheckpoint
		if err := json.Unmarshal(data, &fc); err != nil {
			continue
		}
		out = append(out, &fc)
	}

	return out, nil
}

// Count returns the count of failed checkpoints.
func (r *FailedCheckpointRepo) Count(ctx context.Context, pipeline string) (int, error) {
	count, err := r.rdb.ZCard(ctx, queueKey(pipeline)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}

// MarkResolved removes a failed checkpoint.
func (r *FailedCheckpointRepo) MarkResolved(ctx context.Context, pipeline string, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, queueKey(pipeline), id)
		pipe.Del(ctx, payloadKey(pipeline, id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to resolve failed checkpoint: %w", err)
	}
	return nil
}
