// Package service coordinates the pool ledger with persistence, caching,
// locking, and event fan-out. Services own the write path: every mutation
// goes through the engine under a distributed per-market lock, then out to
// the stores and the signal bus.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// lockTTL bounds how long a crashed writer can hold a market lock.
const lockTTL = 10 * time.Second

// publishJSON marshals v and publishes it on channel. Publish failures are
// logged and swallowed: the stores already hold the truth, subscribers can
// re-sync from them.
func publishJSON(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, v any) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logger.ErrorContext(ctx, "event marshal failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// lockMarket acquires the distributed write lock for a market. When no lock
// manager is configured the engine's own mutexes are the only serialization,
// which is enough for a single-process deployment.
func lockMarket(ctx context.Context, locks domain.LockManager, marketID int64) (func(), error) {
	if locks == nil {
		return func() {}, nil
	}
	return locks.Acquire(ctx, marketLockKey(marketID), lockTTL)
}

func marketLockKey(marketID int64) string {
	return "lock:market:" + strconv.FormatInt(marketID, 10)
}
