package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// StakeStore is an in-memory implementation of domain.StakeStore.
type StakeStore struct {
	mu   sync.RWMutex
	data map[string]domain.Stake
}

// NewStakeStore creates a new in-memory stake store.
func NewStakeStore() *StakeStore {
	return &StakeStore{data: make(map[string]domain.Stake)}
}

func stakeKey(marketID int64, user string, outcome domain.Outcome) string {
	return fmt.Sprintf("%d|%s|%d", marketID, strings.ToLower(user), outcome)
}

// Upsert stores the stake balance, replacing any existing record.
func (s *StakeStore) Upsert(_ context.Context, st domain.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[stakeKey(st.MarketID, st.User, st.Outcome)] = st
	return nil
}

// Get returns a stake balance; missing records read as domain.ErrNotFound.
func (s *StakeStore) Get(_ context.Context, marketID int64, user string, outcome domain.Outcome) (domain.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[stakeKey(marketID, user, outcome)]
	if !ok {
		return domain.Stake{}, fmt.Errorf("memory: stake %d/%s/%d: %w", marketID, user, outcome, domain.ErrNotFound)
	}
	return st, nil
}

// ListByMarket returns every stake on a market, ordered by user then outcome.
func (s *StakeStore) ListByMarket(_ context.Context, marketID int64) ([]domain.Stake, error) {
	s.mu.RLock()
	out := make([]domain.Stake, 0)
	for _, st := range s.data {
		if st.MarketID == marketID {
			out = append(out, st)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].User != out[j].User {
			return out[i].User < out[j].User
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out, nil
}

// ListByUser returns a user's stakes across markets, ordered by market id.
func (s *StakeStore) ListByUser(_ context.Context, user string, opts domain.ListOpts) ([]domain.Stake, error) {
	s.mu.RLock()
	out := make([]domain.Stake, 0)
	for _, st := range s.data {
		if strings.EqualFold(st.User, user) {
			out = append(out, st)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Outcome < out[j].Outcome
	})
	return paginate(out, opts), nil
}

// Compile-time interface check.
var _ domain.StakeStore = (*StakeStore)(nil)
