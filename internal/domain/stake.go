package domain

import "time"

// Stake is a user's cumulative deposit on one outcome of one market, in
// micro-units. It only grows through successful stakes and drops to exactly
// zero when the user claims; a zeroed stake is the "already claimed" marker.
type Stake struct {
	MarketID  int64
	User      string
	Outcome   Outcome
	Amount    int64
	UpdatedAt time.Time
}

// PricePoint is one entry of the materialized price history for a market.
// A point is appended transactionally with every successful stake, carrying
// the post-stake implied prices, so a price-over-time series can be served
// without replaying pool state.
type PricePoint struct {
	MarketID  int64     `json:"marketId"`
	Timestamp time.Time `json:"timestamp"`
	YesCents  int64     `json:"yesPriceCents"`
	NoCents   int64     `json:"noPriceCents"`
	Outcome   Outcome   `json:"outcome"`
	Amount    int64     `json:"amount"`
	User      string    `json:"user"`
}

// Payout records a completed claim for audit and leaderboard queries.
type Payout struct {
	MarketID  int64
	User      string
	Amount    int64
	ClaimedAt time.Time
}

// UserTotals aggregates a user's activity across markets for the
// leaderboard and profile surfaces.
type UserTotals struct {
	User         string `json:"user"`
	TotalStaked  int64  `json:"totalStaked"`
	TotalClaimed int64  `json:"totalClaimed"`
}
