package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/engine"
)

// PriceService serves implied prices and the materialized price history.
type PriceService struct {
	eng    *engine.Engine
	cache  domain.PriceCache
	points domain.PricePointStore
	clock  domain.Clock
	logger *slog.Logger
}

// NewPriceService creates a PriceService.
func NewPriceService(
	eng *engine.Engine,
	cache domain.PriceCache,
	points domain.PricePointStore,
	clock domain.Clock,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		eng:    eng,
		cache:  cache,
		points: points,
		clock:  clock,
		logger: logger,
	}
}

// Current returns the implied price pair for a market, checking the cache
// first and falling back to the ledger on a miss.
func (s *PriceService) Current(ctx context.Context, marketID int64) (domain.Prices, error) {
	if s.cache != nil {
		p, _, err := s.cache.GetPrices(ctx, marketID)
		if err == nil {
			return p, nil
		}
	}

	p, err := s.eng.Prices(marketID)
	if err != nil {
		return domain.Prices{}, err
	}

	// Back-fill the cache; log but do not fail on cache write errors.
	if s.cache != nil {
		if cacheErr := s.cache.SetPrices(ctx, marketID, p, s.clock.Now()); cacheErr != nil {
			s.logger.WarnContext(ctx, "price cache back-fill failed",
				slog.Int64("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return p, nil
}

// History returns the price timeline for a market, oldest first.
func (s *PriceService) History(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.PricePoint, error) {
	// An unknown market reads as an error, not an empty series.
	if _, err := s.eng.Market(marketID); err != nil {
		return nil, err
	}
	points, err := s.points.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("price_service: listing history for market %d: %w", marketID, err)
	}
	return points, nil
}
