package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// PayoutStore is an in-memory implementation of domain.PayoutStore. Staked
// totals are read from the stake store, the way the postgres implementation
// joins the stakes table.
type PayoutStore struct {
	mu     sync.RWMutex
	data   []domain.Payout
	stakes *StakeStore
}

// NewPayoutStore creates a new in-memory payout store over the given stake
// store.
func NewPayoutStore(stakes *StakeStore) *PayoutStore {
	return &PayoutStore{stakes: stakes}
}

// Insert records a completed claim.
func (s *PayoutStore) Insert(_ context.Context, p domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, p)
	return nil
}

// ListByMarket returns payouts for a market in claim order.
func (s *PayoutStore) ListByMarket(_ context.Context, marketID int64) ([]domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Payout, 0)
	for _, p := range s.data {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Leaderboard returns users ordered by total claimed, descending. Users who
// staked but have not claimed appear with a zero claimed total.
func (s *PayoutStore) Leaderboard(_ context.Context, limit int) ([]domain.UserTotals, error) {
	staked := make(map[string]int64)
	s.stakes.mu.RLock()
	for _, st := range s.stakes.data {
		staked[strings.ToLower(st.User)] += st.Amount
	}
	s.stakes.mu.RUnlock()

	s.mu.RLock()
	claimed := make(map[string]int64)
	for _, p := range s.data {
		claimed[strings.ToLower(p.User)] += p.Amount
	}
	s.mu.RUnlock()

	users := make(map[string]struct{}, len(staked)+len(claimed))
	for u := range staked {
		users[u] = struct{}{}
	}
	for u := range claimed {
		users[u] = struct{}{}
	}
	totals := make([]domain.UserTotals, 0, len(users))
	for user := range users {
		totals = append(totals, domain.UserTotals{
			User:         user,
			TotalStaked:  staked[user],
			TotalClaimed: claimed[user],
		})
	}

	sort.Slice(totals, func(i, j int) bool {
		if totals[i].TotalClaimed != totals[j].TotalClaimed {
			return totals[i].TotalClaimed > totals[j].TotalClaimed
		}
		return totals[i].User < totals[j].User
	})
	if limit > 0 && limit < len(totals) {
		totals = totals[:limit]
	}
	return totals, nil
}

// Compile-time interface check.
var _ domain.PayoutStore = (*PayoutStore)(nil)
