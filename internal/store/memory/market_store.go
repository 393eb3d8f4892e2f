// Package memory provides in-memory implementations of the domain store
// interfaces, used in tests and when the service runs without PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// MarketStore is an in-memory implementation of domain.MarketStore.
type MarketStore struct {
	mu   sync.RWMutex
	data map[int64]domain.Market
}

// NewMarketStore creates a new in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{data: make(map[int64]domain.Market)}
}

// Create inserts a new market. The id must not already exist.
func (s *MarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[m.ID]; exists {
		return fmt.Errorf("memory: market %d already exists", m.ID)
	}
	s.data[m.ID] = m
	return nil
}

// Update replaces an existing market's state.
func (s *MarketStore) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[m.ID]; !exists {
		return fmt.Errorf("memory: update market %d: %w", m.ID, domain.ErrNotFound)
	}
	s.data[m.ID] = m
	return nil
}

// GetByID returns a market by id.
func (s *MarketStore) GetByID(_ context.Context, id int64) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %d: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// List returns markets ordered by id with pagination.
func (s *MarketStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	all := make([]domain.Market, 0, len(s.data))
	for _, m := range s.data {
		all = append(all, m)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	return paginate(all, opts), nil
}

// Count returns the number of stored markets.
func (s *MarketStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// paginate applies Limit/Offset to a sorted slice.
func paginate[T any](all []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(all) {
		return []T{}
	}
	out := all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
