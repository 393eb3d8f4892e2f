package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/stakehouse/internal/seeder"
)

// SeedService drives liquidity seeding for newly created markets and keeps
// partially completed flows around so they can be resumed.
type SeedService struct {
	sdr      *seeder.Seeder
	notifier Notifier
	logger   *slog.Logger

	defaultFunder string
	defaultAmount int64

	mu      sync.Mutex
	pending map[int64]*seeder.Flow
}

// NewSeedService creates a SeedService. notifier may be nil.
func NewSeedService(sdr *seeder.Seeder, notifier Notifier, logger *slog.Logger) *SeedService {
	return &SeedService{
		sdr:      sdr,
		notifier: notifier,
		logger:   logger,
		pending:  make(map[int64]*seeder.Flow),
	}
}

// WithDefaults sets the funder and per-side amount used when a Seed call
// leaves them empty. Returns s for chaining.
func (s *SeedService) WithDefaults(funder string, amount int64) *SeedService {
	s.defaultFunder = funder
	s.defaultAmount = amount
	return s
}

// Seed runs the seeding workflow for a market. A failed flow is retained and
// the next Seed call for the same market resumes it instead of starting over.
func (s *SeedService) Seed(ctx context.Context, marketID int64, funder string, amount int64) error {
	if funder == "" {
		funder = s.defaultFunder
	}
	if amount <= 0 {
		amount = s.defaultAmount
	}

	s.mu.Lock()
	flow, ok := s.pending[marketID]
	if !ok {
		flow = s.sdr.Start(marketID, funder, amount)
		s.pending[marketID] = flow
	}
	s.mu.Unlock()

	err := s.sdr.Run(ctx, flow)
	if err == nil {
		s.mu.Lock()
		delete(s.pending, marketID)
		s.mu.Unlock()
		return nil
	}

	var stageErr *seeder.StageError
	stage := "unknown"
	if errors.As(err, &stageErr) {
		stage = string(stageErr.Stage)
	}
	s.logger.ErrorContext(ctx, "liquidity seeding failed",
		slog.Int64("market_id", marketID),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	if s.notifier != nil {
		if notifyErr := s.notifier.SeedingFailed(ctx, marketID, stage, err); notifyErr != nil {
			s.logger.WarnContext(ctx, "seeding failure notification failed",
				slog.Int64("market_id", marketID),
				slog.String("error", notifyErr.Error()),
			)
		}
	}
	return err
}

// Pending lists market ids with unfinished seeding flows.
func (s *SeedService) Pending() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// RetryLoop retries unfinished seeding flows every interval until ctx is
// cancelled. Markets whose flow failed part way regain their liquidity floor
// without waiting for another Seed call.
func (s *SeedService) RetryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Resume(ctx)
		}
	}
}

// Resume retries every unfinished flow, stopping at the first context error.
func (s *SeedService) Resume(ctx context.Context) {
	for _, id := range s.Pending() {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		flow := s.pending[id]
		s.mu.Unlock()
		if flow == nil {
			continue
		}
		if err := s.Seed(ctx, flow.MarketID, flow.Funder, flow.Amount); err != nil {
			continue
		}
	}
}
