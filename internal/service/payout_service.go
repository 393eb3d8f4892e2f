package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/engine"
)

// PayoutService owns claims and the leaderboard.
type PayoutService struct {
	eng     *engine.Engine
	stakes  domain.StakeStore
	payouts domain.PayoutStore
	locks   domain.LockManager
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewPayoutService creates a PayoutService.
func NewPayoutService(
	eng *engine.Engine,
	stakes domain.StakeStore,
	payouts domain.PayoutStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PayoutService {
	return &PayoutService{
		eng:     eng,
		stakes:  stakes,
		payouts: payouts,
		locks:   locks,
		bus:     bus,
		logger:  logger,
	}
}

// Claimable returns the payout user could claim right now, without claiming.
func (s *PayoutService) Claimable(ctx context.Context, marketID int64, user string) (int64, error) {
	return s.eng.Claimable(marketID, user)
}

// Claim pays out user's winning stake on a resolved market. The winning
// balance is zeroed so a second claim finds nothing.
func (s *PayoutService) Claim(ctx context.Context, marketID int64, user string) (domain.PayoutEvent, error) {
	unlock, err := lockMarket(ctx, s.locks, marketID)
	if err != nil {
		return domain.PayoutEvent{}, err
	}
	defer unlock()

	m, err := s.eng.Market(marketID)
	if err != nil {
		return domain.PayoutEvent{}, err
	}
	staked, err := s.eng.UserStake(marketID, user, m.WinningOutcome)
	if err != nil {
		return domain.PayoutEvent{}, err
	}

	ev, err := s.eng.Claim(marketID, user)
	if err != nil {
		return domain.PayoutEvent{}, err
	}

	// A failed store write reinstates the zeroed balance, so the claim can be
	// retried instead of stranding the winnings behind ErrNoWinnings.
	if err := s.stakes.Upsert(ctx, domain.Stake{
		MarketID:  marketID,
		User:      user,
		Outcome:   m.WinningOutcome,
		Amount:    0,
		UpdatedAt: ev.At,
	}); err != nil {
		s.rollbackClaim(ctx, marketID, user, m.WinningOutcome, staked)
		return domain.PayoutEvent{}, fmt.Errorf("payout_service: zeroing claimed stake for market %d: %w", marketID, err)
	}
	if err := s.payouts.Insert(ctx, domain.Payout{
		MarketID:  marketID,
		User:      user,
		Amount:    ev.Amount,
		ClaimedAt: ev.At,
	}); err != nil {
		s.rollbackClaim(ctx, marketID, user, m.WinningOutcome, staked)
		return domain.PayoutEvent{}, fmt.Errorf("payout_service: recording payout for market %d: %w", marketID, err)
	}

	publishJSON(ctx, s.bus, s.logger, domain.ChannelPayouts, ev)

	s.logger.InfoContext(ctx, "payout claimed",
		slog.Int64("market_id", marketID),
		slog.String("user", user),
		slog.Int64("amount", ev.Amount),
	)
	return ev, nil
}

// rollbackClaim restores the winning balance zeroed by a claim whose store
// writes failed. The retried claim rewrites the zeroed stake row.
func (s *PayoutService) rollbackClaim(ctx context.Context, marketID int64, user string, outcome domain.Outcome, staked int64) {
	if err := s.eng.ReinstateStake(marketID, user, outcome, staked); err != nil {
		s.logger.ErrorContext(ctx, "claim rollback failed",
			slog.Int64("market_id", marketID),
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
	}
}

// ByMarket lists completed claims for a market in claim order.
func (s *PayoutService) ByMarket(ctx context.Context, marketID int64) ([]domain.Payout, error) {
	payouts, err := s.payouts.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("payout_service: listing payouts for market %d: %w", marketID, err)
	}
	return payouts, nil
}

// Leaderboard returns the top users by total claimed.
func (s *PayoutService) Leaderboard(ctx context.Context, limit int) ([]domain.UserTotals, error) {
	totals, err := s.payouts.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("payout_service: leaderboard: %w", err)
	}
	return totals, nil
}
