package domain

import "time"

// Signal bus channels. WebSocket clients subscribe to the same names.
const (
	ChannelStakes      = "stakes"
	ChannelPayouts     = "payouts"
	ChannelResolutions = "resolutions"
)

// StakeStream is the durable stream that mirrors ChannelStakes for
// consumers that cannot afford to miss events (price-history backfill).
const StakeStream = "stream:stakes"

// StakeEvent is emitted on every successful stake. The price fields are the
// post-stake implied prices, computed atomically with the pool update, so
// the event log alone reconstructs the exact price series.
type StakeEvent struct {
	MarketID int64     `json:"marketId"`
	User     string    `json:"user"`
	Outcome  Outcome   `json:"outcome"`
	Amount   int64     `json:"amount"`
	YesCents int64     `json:"yesPriceCents"`
	NoCents  int64     `json:"noPriceCents"`
	At       time.Time `json:"at"`
}

// PayoutEvent is emitted on every successful claim.
type PayoutEvent struct {
	MarketID int64     `json:"marketId"`
	User     string    `json:"user"`
	Amount   int64     `json:"amount"`
	At       time.Time `json:"at"`
}

// ResolvedEvent is emitted once when a market is resolved.
type ResolvedEvent struct {
	MarketID       int64     `json:"marketId"`
	WinningOutcome Outcome   `json:"winningOutcome"`
	EvidenceRef    string    `json:"evidenceRef"`
	TotalPool      int64     `json:"totalPool"`
	At             time.Time `json:"at"`
}
