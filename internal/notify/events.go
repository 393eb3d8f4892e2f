package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// Event types used to filter market alerts.
const (
	EventMarketResolved = "market_resolved"
	EventSeedingFailed  = "seeding_failed"
)

// MarketEvents adapts the Notifier to the market alert surface the service
// layer calls.
type MarketEvents struct {
	notifier *Notifier
}

// NewMarketEvents wraps a Notifier.
func NewMarketEvents(notifier *Notifier) *MarketEvents {
	return &MarketEvents{notifier: notifier}
}

// MarketResolved announces a settled market.
func (e *MarketEvents) MarketResolved(ctx context.Context, m domain.Market) error {
	title := fmt.Sprintf("Market %d resolved: %s", m.ID, m.WinningOutcome)
	message := fmt.Sprintf("%s\nTotal pool: %d micro-tokens\nEvidence: %s",
		m.Question, m.TotalPool(), orDash(m.EvidenceRef))
	return e.notifier.Notify(ctx, EventMarketResolved, title, message)
}

// SeedingFailed alerts operators that a liquidity seeding flow stalled and
// names the stage to resume from.
func (e *MarketEvents) SeedingFailed(ctx context.Context, marketID int64, stage string, cause error) error {
	title := fmt.Sprintf("Seeding failed for market %d", marketID)
	message := fmt.Sprintf("Stage: %s\nError: %v\nRetry via POST /api/markets/%d/seed", stage, cause, marketID)
	return e.notifier.Notify(ctx, EventSeedingFailed, title, message)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
