package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market state.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id int64) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// StakeStore persists per-user per-outcome stake balances.
type StakeStore interface {
	Upsert(ctx context.Context, s Stake) error
	Get(ctx context.Context, marketID int64, user string, outcome Outcome) (Stake, error)
	ListByMarket(ctx context.Context, marketID int64) ([]Stake, error)
	ListByUser(ctx context.Context, user string, opts ListOpts) ([]Stake, error)
}

// PricePointStore persists the append-only materialized price history.
type PricePointStore interface {
	Append(ctx context.Context, p PricePoint) error
	ListByMarket(ctx context.Context, marketID int64, opts ListOpts) ([]PricePoint, error)
}

// PayoutStore persists completed claims.
type PayoutStore interface {
	Insert(ctx context.Context, p Payout) error
	ListByMarket(ctx context.Context, marketID int64) ([]Payout, error)
	Leaderboard(ctx context.Context, limit int) ([]UserTotals, error)
}
