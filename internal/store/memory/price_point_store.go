package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// PricePointStore is an in-memory implementation of domain.PricePointStore.
// Points are append-only; readers may observe a list that misses the very
// latest append, never a partially written point.
type PricePointStore struct {
	mu   sync.RWMutex
	data map[int64][]domain.PricePoint
}

// NewPricePointStore creates a new in-memory price history store.
func NewPricePointStore() *PricePointStore {
	return &PricePointStore{data: make(map[int64][]domain.PricePoint)}
}

// Append adds a price point to the market's history.
func (s *PricePointStore) Append(_ context.Context, p domain.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[p.MarketID] = append(s.data[p.MarketID], p)
	return nil
}

// ListByMarket returns the market's price history in timestamp order,
// optionally bounded by Since/Until.
func (s *PricePointStore) ListByMarket(_ context.Context, marketID int64, opts domain.ListOpts) ([]domain.PricePoint, error) {
	s.mu.RLock()
	points := s.data[marketID]
	out := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		if opts.Since != nil && p.Timestamp.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && p.Timestamp.After(*opts.Until) {
			continue
		}
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return paginate(out, opts), nil
}

// Compile-time interface check.
var _ domain.PricePointStore = (*PricePointStore)(nil)
