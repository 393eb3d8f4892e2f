package domain

import "time"

// Outcome identifies one side of a binary market. The numeric encoding
// matches the on-chain contract and must never be inverted: 0 = NO, 1 = YES.
type Outcome uint8

const (
	OutcomeNo  Outcome = 0
	OutcomeYes Outcome = 1
)

// Valid reports whether o is one of the two defined outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeNo || o == OutcomeYes
}

// Opposite returns the other side of the market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// String returns "YES" or "NO".
func (o Outcome) String() string {
	if o == OutcomeYes {
		return "YES"
	}
	return "NO"
}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is a binary-outcome prediction market. Pool amounts are integers in
// micro-units (6 decimal places) of the staking token, mirroring the
// contract's fixed-point representation.
type Market struct {
	ID             int64
	Question       string
	MarketType     string
	OracleURL      string
	CloseTime      time.Time
	Resolved       bool
	WinningOutcome Outcome
	EvidenceRef    string
	Pools          [2]int64 // indexed by Outcome
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// TotalPool returns the sum of both outcome pools.
func (m Market) TotalPool() int64 {
	return m.Pools[OutcomeNo] + m.Pools[OutcomeYes]
}

// Status derives the lifecycle state of the market at the given instant.
// A market is open strictly before its close time; at or after close time it
// is closed until resolved.
func (m Market) Status(now time.Time) MarketStatus {
	if m.Resolved {
		return MarketStatusResolved
	}
	if now.Before(m.CloseTime) {
		return MarketStatusOpen
	}
	return MarketStatusClosed
}

// MarketInfo is the read-model snapshot exposed by the query surface,
// matching the contract's getMarketInfo view.
type MarketInfo struct {
	ID             int64   `json:"id"`
	Question       string  `json:"question"`
	MarketType     string  `json:"marketType"`
	OracleURL      string  `json:"oracleUrl"`
	CloseTime      int64   `json:"closeTime"` // Unix seconds
	Resolved       bool    `json:"resolved"`
	WinningOutcome Outcome `json:"winningOutcome"`
	TotalPool      int64   `json:"totalPool"`
}

// Prices is an implied price pair in integer cents. Each side is rounded
// independently from its pool share, so the two values may not sum to
// exactly 100. Consumers rely on the independent rounding; it is not
// corrected here.
type Prices struct {
	YesCents int64 `json:"yesPriceCents"`
	NoCents  int64 `json:"noPriceCents"`
}
