package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest implied prices per market.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID int64, p Prices, ts time.Time) error
	GetPrices(ctx context.Context, marketID int64) (Prices, time.Time, error)
	Invalidate(ctx context.Context, marketID int64) error
}

// LockManager provides distributed per-market locking so that concurrent
// writers never evaluate the starvation guard against stale pool totals.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter enforces a per-key request budget over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CheckpointStore persists a named progress cursor, such as the last block
// the log indexer has swept.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, name string) (uint64, error)
	SaveCheckpoint(ctx context.Context, name string, value uint64) error
}

// StreamMessage represents a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out and durable streams for the stake and
// payout event log.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
