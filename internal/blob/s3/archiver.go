package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// SettlementArchiver uploads a JSON snapshot of every resolved market to
// cold storage: the final pool totals, all stake balances at resolution, and
// the payouts claimed so far. The snapshot is the audit record that outlives
// row churn in the primary store.
type SettlementArchiver struct {
	writer *Writer
	prefix string
	logger *slog.Logger
}

// NewSettlementArchiver creates a SettlementArchiver. prefix is prepended to
// every object key, e.g. "stakehouse/prod".
func NewSettlementArchiver(writer *Writer, prefix string, logger *slog.Logger) *SettlementArchiver {
	return &SettlementArchiver{
		writer: writer,
		prefix: prefix,
		logger: logger,
	}
}

// settlementReport is the uploaded object schema.
type settlementReport struct {
	Market     domain.Market   `json:"market"`
	Stakes     []domain.Stake  `json:"stakes"`
	Payouts    []domain.Payout `json:"payouts"`
	TotalPool  int64           `json:"totalPool"`
	ArchivedAt time.Time       `json:"archivedAt"`
}

// ArchiveResolution serializes the settlement snapshot and uploads it to
// "{prefix}/settlements/market-{id}.json".
func (a *SettlementArchiver) ArchiveResolution(ctx context.Context, m domain.Market, stakes []domain.Stake, payouts []domain.Payout) error {
	report := settlementReport{
		Market:     m,
		Stakes:     stakes,
		Payouts:    payouts,
		TotalPool:  m.TotalPool(),
		ArchivedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal settlement report for market %d: %w", m.ID, err)
	}

	key := fmt.Sprintf("%s/settlements/market-%06d.json", a.prefix, m.ID)
	if err := a.writer.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "settlement report archived",
		slog.Int64("market_id", m.ID),
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)
	return nil
}
