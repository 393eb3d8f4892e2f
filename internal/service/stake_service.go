package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/engine"
)

// StakeService owns the staking write path and stake reads.
type StakeService struct {
	eng     *engine.Engine
	markets domain.MarketStore
	stakes  domain.StakeStore
	points  domain.PricePointStore
	cache   domain.PriceCache
	locks   domain.LockManager
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewStakeService creates a StakeService.
func NewStakeService(
	eng *engine.Engine,
	markets domain.MarketStore,
	stakes domain.StakeStore,
	points domain.PricePointStore,
	cache domain.PriceCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	logger *slog.Logger,
) *StakeService {
	return &StakeService{
		eng:     eng,
		markets: markets,
		stakes:  stakes,
		points:  points,
		cache:   cache,
		locks:   locks,
		bus:     bus,
		logger:  logger,
	}
}

// Place stakes amount micro-tokens on outcome for user. On success the
// stake balance, pool totals, and a price history point are persisted, the
// latest prices are cached, and a stake event goes out on the bus.
func (s *StakeService) Place(ctx context.Context, user string, marketID int64, outcome domain.Outcome, amount int64) (domain.StakeEvent, error) {
	unlock, err := lockMarket(ctx, s.locks, marketID)
	if err != nil {
		return domain.StakeEvent{}, err
	}
	defer unlock()

	ev, err := s.eng.Stake(user, marketID, outcome, amount)
	if err != nil {
		return domain.StakeEvent{}, err
	}

	balance, err := s.eng.UserStake(marketID, user, outcome)
	if err != nil {
		return domain.StakeEvent{}, err
	}
	// A failed store write rolls the ledger back to its pre-stake state, so a
	// retry recomputes and rewrites the same rows instead of double counting.
	if err := s.stakes.Upsert(ctx, domain.Stake{
		MarketID:  marketID,
		User:      user,
		Outcome:   outcome,
		Amount:    balance,
		UpdatedAt: ev.At,
	}); err != nil {
		s.rollbackStake(ctx, marketID, user, outcome, amount)
		return domain.StakeEvent{}, fmt.Errorf("stake_service: persisting stake for market %d: %w", marketID, err)
	}

	m, err := s.eng.Market(marketID)
	if err != nil {
		return domain.StakeEvent{}, err
	}
	if err := s.markets.Update(ctx, m); err != nil {
		s.rollbackStake(ctx, marketID, user, outcome, amount)
		return domain.StakeEvent{}, fmt.Errorf("stake_service: persisting pools for market %d: %w", marketID, err)
	}

	if err := s.points.Append(ctx, domain.PricePoint{
		MarketID:  marketID,
		Timestamp: ev.At,
		YesCents:  ev.YesCents,
		NoCents:   ev.NoCents,
		Outcome:   outcome,
		Amount:    amount,
		User:      user,
	}); err != nil {
		s.rollbackStake(ctx, marketID, user, outcome, amount)
		return domain.StakeEvent{}, fmt.Errorf("stake_service: appending price point for market %d: %w", marketID, err)
	}

	if s.cache != nil {
		prices := domain.Prices{YesCents: ev.YesCents, NoCents: ev.NoCents}
		if err := s.cache.SetPrices(ctx, marketID, prices, ev.At); err != nil {
			s.logger.WarnContext(ctx, "price cache update failed",
				slog.Int64("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	publishJSON(ctx, s.bus, s.logger, domain.ChannelStakes, ev)
	s.appendStream(ctx, ev)

	s.logger.InfoContext(ctx, "stake placed",
		slog.Int64("market_id", marketID),
		slog.String("user", user),
		slog.String("outcome", outcome.String()),
		slog.Int64("amount", amount),
	)
	return ev, nil
}

// rollbackStake reverses the ledger mutation after a store write failed
// mid-way through Place. Rows already written carry the rolled-back values
// again once the caller retries.
func (s *StakeService) rollbackStake(ctx context.Context, marketID int64, user string, outcome domain.Outcome, amount int64) {
	if err := s.eng.UnwindStake(marketID, user, outcome, amount); err != nil {
		s.logger.ErrorContext(ctx, "stake rollback failed",
			slog.Int64("market_id", marketID),
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
	}
}

// Stake satisfies the seeding orchestrator's staker dependency.
func (s *StakeService) Stake(ctx context.Context, marketID int64, user string, outcome domain.Outcome, amount int64) error {
	_, err := s.Place(ctx, user, marketID, outcome, amount)
	return err
}

// ByUser returns a user's stake balances across markets.
func (s *StakeService) ByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Stake, error) {
	stakes, err := s.stakes.ListByUser(ctx, user, opts)
	if err != nil {
		return nil, fmt.Errorf("stake_service: listing stakes for user %s: %w", user, err)
	}
	return stakes, nil
}

// ByMarket returns every non-zero stake balance on a market.
func (s *StakeService) ByMarket(ctx context.Context, marketID int64) ([]domain.Stake, error) {
	return s.eng.Stakes(marketID)
}

// UserStake returns user's balance on one side of a market.
func (s *StakeService) UserStake(ctx context.Context, marketID int64, user string, outcome domain.Outcome) (int64, error) {
	return s.eng.UserStake(marketID, user, outcome)
}

// OutcomePool returns the total staked on one side of a market.
func (s *StakeService) OutcomePool(ctx context.Context, marketID int64, outcome domain.Outcome) (int64, error) {
	return s.eng.OutcomePool(marketID, outcome)
}

// appendStream records the stake on the durable stream for replay consumers.
func (s *StakeService) appendStream(ctx context.Context, ev domain.StakeEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "stake stream marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.StreamAppend(ctx, domain.StakeStream, payload); err != nil {
		s.logger.WarnContext(ctx, "stake stream append failed",
			slog.Int64("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}
