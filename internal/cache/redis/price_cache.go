package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// implied price pair is stored at key "price:{marketID}" with fields "yes",
// "no", and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID int64) string {
	return "price:" + strconv.FormatInt(marketID, 10)
}

// SetPrices stores the latest implied price pair for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID int64, p domain.Prices, ts time.Time) error {
	fields := map[string]interface{}{
		"yes": strconv.FormatInt(p.YesCents, 10),
		"no":  strconv.FormatInt(p.NoCents, 10),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices for market %d: %w", marketID, err)
	}
	return nil
}

// GetPrices retrieves the latest price pair for a market. It returns
// domain.ErrNotFound when no pair has been cached.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID int64) (domain.Prices, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return domain.Prices{}, time.Time{}, fmt.Errorf("redis: get prices for market %d: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.Prices{}, time.Time{}, domain.ErrNotFound
	}

	yes, err := strconv.ParseInt(vals["yes"], 10, 64)
	if err != nil {
		return domain.Prices{}, time.Time{}, fmt.Errorf("redis: parse yes cents for market %d: %w", marketID, err)
	}
	no, err := strconv.ParseInt(vals["no"], 10, 64)
	if err != nil {
		return domain.Prices{}, time.Time{}, fmt.Errorf("redis: parse no cents for market %d: %w", marketID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Prices{}, time.Time{}, fmt.Errorf("redis: parse ts for market %d: %w", marketID, err)
	}

	return domain.Prices{YesCents: yes, NoCents: no}, time.Unix(0, tsNano), nil
}

// Invalidate drops the cached pair for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID int64) error {
	if err := pc.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices for market %d: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
