package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/engine"
)

// Archiver writes a cold-storage snapshot of a resolved market.
type Archiver interface {
	ArchiveResolution(ctx context.Context, m domain.Market, stakes []domain.Stake, payouts []domain.Payout) error
}

// Notifier delivers out-of-band alerts for operational events.
type Notifier interface {
	MarketResolved(ctx context.Context, m domain.Market) error
	SeedingFailed(ctx context.Context, marketID int64, stage string, cause error) error
}

// MarketService handles the market lifecycle: creation, resolution, and
// reads. Archiver and notifier may be nil; both are best-effort.
type MarketService struct {
	eng      *engine.Engine
	markets  domain.MarketStore
	stakes   domain.StakeStore
	payouts  domain.PayoutStore
	locks    domain.LockManager
	bus      domain.SignalBus
	archiver Archiver
	notifier Notifier
	logger   *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	eng *engine.Engine,
	markets domain.MarketStore,
	stakes domain.StakeStore,
	payouts domain.PayoutStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	archiver Archiver,
	notifier Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		eng:      eng,
		markets:  markets,
		stakes:   stakes,
		payouts:  payouts,
		locks:    locks,
		bus:      bus,
		archiver: archiver,
		notifier: notifier,
		logger:   logger,
	}
}

// Rehydrate loads every persisted market and its stake balances into the
// engine. Call once at startup, before the write path opens.
func (s *MarketService) Rehydrate(ctx context.Context) error {
	const pageSize = 500

	restored := 0
	for offset := 0; ; offset += pageSize {
		markets, err := s.markets.List(ctx, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("market_service: listing markets at offset %d: %w", offset, err)
		}
		if len(markets) == 0 {
			break
		}
		for _, m := range markets {
			stakes, err := s.stakes.ListByMarket(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("market_service: listing stakes for market %d: %w", m.ID, err)
			}
			s.eng.Restore(m, stakes)
			restored++
		}
		if len(markets) < pageSize {
			break
		}
	}

	s.logger.InfoContext(ctx, "ledger rehydrated", slog.Int("markets", restored))
	return nil
}

// Create opens a new market. Only the configured owner may create markets.
func (s *MarketService) Create(ctx context.Context, caller, question, marketType, oracleURL string, closeTime time.Time) (domain.Market, error) {
	m, err := s.eng.CreateMarket(caller, question, marketType, oracleURL, closeTime)
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.markets.Create(ctx, m); err != nil {
		// Drop the unpersisted market so the ledger never serves a market
		// that would vanish on restart.
		s.eng.DropMarket(m.ID)
		return domain.Market{}, fmt.Errorf("market_service: persisting market %d: %w", m.ID, err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.Int64("market_id", m.ID),
		slog.String("question", m.Question),
		slog.Time("close_time", m.CloseTime),
	)
	return m, nil
}

// Resolve marks a market's winning outcome. The payout snapshot is archived
// and a resolution event published; both are best-effort once the store
// update has committed.
func (s *MarketService) Resolve(ctx context.Context, caller string, marketID int64, winner domain.Outcome, evidenceRef string) (domain.ResolvedEvent, error) {
	unlock, err := lockMarket(ctx, s.locks, marketID)
	if err != nil {
		return domain.ResolvedEvent{}, err
	}
	defer unlock()

	ev, err := s.eng.Resolve(caller, marketID, winner, evidenceRef)
	if err != nil {
		return domain.ResolvedEvent{}, err
	}

	m, err := s.eng.Market(marketID)
	if err != nil {
		return domain.ResolvedEvent{}, err
	}
	if err := s.markets.Update(ctx, m); err != nil {
		// An unpersisted resolution is cleared so the retry is a fresh
		// one-shot transition, not a stranded half-resolved market.
		if uerr := s.eng.UnwindResolve(marketID); uerr != nil {
			s.logger.ErrorContext(ctx, "resolution rollback failed",
				slog.Int64("market_id", marketID),
				slog.String("error", uerr.Error()),
			)
		}
		return domain.ResolvedEvent{}, fmt.Errorf("market_service: persisting resolution of market %d: %w", marketID, err)
	}

	publishJSON(ctx, s.bus, s.logger, domain.ChannelResolutions, ev)
	s.archive(ctx, m)
	if s.notifier != nil {
		if err := s.notifier.MarketResolved(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "resolution notification failed",
				slog.Int64("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market resolved",
		slog.Int64("market_id", marketID),
		slog.String("winner", winner.String()),
		slog.Int64("total_pool", ev.TotalPool),
	)
	return ev, nil
}

// Get returns a market by id from the in-memory ledger.
func (s *MarketService) Get(ctx context.Context, marketID int64) (domain.Market, error) {
	return s.eng.Market(marketID)
}

// Info returns the read-model snapshot of a market.
func (s *MarketService) Info(ctx context.Context, marketID int64) (domain.MarketInfo, error) {
	return s.eng.MarketInfo(marketID)
}

// List pages through persisted markets, newest first.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: listing markets: %w", err)
	}
	return markets, nil
}

// Count returns the number of markets ever created.
func (s *MarketService) Count(ctx context.Context) int64 {
	return s.eng.MarketCount()
}

func (s *MarketService) archive(ctx context.Context, m domain.Market) {
	if s.archiver == nil {
		return
	}
	stakes, err := s.eng.Stakes(m.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "archive snapshot failed",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	payouts, err := s.payouts.ListByMarket(ctx, m.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "archive snapshot failed",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.archiver.ArchiveResolution(ctx, m, stakes, payouts); err != nil {
		s.logger.WarnContext(ctx, "archive upload failed",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
