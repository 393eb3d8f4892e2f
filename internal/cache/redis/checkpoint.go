package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CheckpointStore implements domain.CheckpointStore on plain Redis string
// keys. Cursors live at "checkpoint:{name}".
type CheckpointStore struct {
	rdb *redis.Client
}

// NewCheckpointStore creates a CheckpointStore backed by the given Client.
func NewCheckpointStore(c *Client) *CheckpointStore {
	return &CheckpointStore{rdb: c.Underlying()}
}

// LoadCheckpoint returns the saved cursor for name, or zero when none exists.
func (cs *CheckpointStore) LoadCheckpoint(ctx context.Context, name string) (uint64, error) {
	v, err := cs.rdb.Get(ctx, "checkpoint:"+name).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: load checkpoint %s: %w", name, err)
	}
	return v, nil
}

// SaveCheckpoint stores the cursor for name.
func (cs *CheckpointStore) SaveCheckpoint(ctx context.Context, name string, value uint64) error {
	if err := cs.rdb.Set(ctx, "checkpoint:"+name, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: save checkpoint %s: %w", name, err)
	}
	return nil
}
