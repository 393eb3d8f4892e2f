// Package seeder runs the multi-step liquidity seeding workflow after market
// creation: check the funder's token allowance, approve if short, then stake
// an equal amount on YES and NO. Seeding both sides keeps the pool-starvation
// guard from ever blocking organic trading and opens the market at a known
// 50/50 baseline.
//
// Each stage is one irreversible external action. The workflow never rolls
// back completed stages; a failure leaves the flow parked at the failed
// stage, and re-running the flow resumes there.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// Stage identifies one step of the seeding workflow.
type Stage string

const (
	StageCreated        Stage = "created"
	StageAllowanceCheck Stage = "allowance_check"
	StageApprove        Stage = "approve"
	StageSeedYes        Stage = "seed_yes"
	StageSeedNo         Stage = "seed_no"
	StageComplete       Stage = "complete"
)

// MaxApproval is the unlimited ERC-20 allowance (2^256 - 1), matching what
// the admin surface requests so one approval covers all future seeds.
var MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// StageError tags a failure with the stage it occurred in, so callers can
// resume at the right step instead of restarting the whole flow.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("seeder: stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// TokenApprover is the staking token's spending-allowance surface.
type TokenApprover interface {
	// Allowance returns how much the market contract may currently spend on
	// the funder's behalf, in micro-units.
	Allowance(ctx context.Context, funder string) (*big.Int, error)
	// Approve grants the market contract a spending allowance.
	Approve(ctx context.Context, amount *big.Int) error
}

// Staker places a stake on one side of a market.
type Staker interface {
	Stake(ctx context.Context, marketID int64, user string, outcome domain.Outcome, amount int64) error
}

// Flow is the persistent state of one seeding workflow. Stage always names
// the next step to execute, so a Flow recovered after a partial failure
// resumes exactly where it stopped.
type Flow struct {
	MarketID int64
	Funder   string
	Amount   int64 // per-side seed in micro-units; zero means no seeding
	Stage    Stage
}

// Seeder drives seeding flows against a token and a market.
type Seeder struct {
	token  TokenApprover
	staker Staker
	logger *slog.Logger
}

// New creates a Seeder.
func New(token TokenApprover, staker Staker, logger *slog.Logger) *Seeder {
	return &Seeder{
		token:  token,
		staker: staker,
		logger: logger.With(slog.String("component", "seeder")),
	}
}

// Start builds a fresh flow for a newly created market.
func (s *Seeder) Start(marketID int64, funder string, amount int64) *Flow {
	return &Flow{
		MarketID: marketID,
		Funder:   funder,
		Amount:   amount,
		Stage:    StageCreated,
	}
}

// Run advances the flow until it completes or a stage fails. On failure the
// flow's Stage still names the failed step, and the returned error is a
// StageError wrapping the cause; calling Run again retries from that stage.
// Completed stages are never repeated.
func (s *Seeder) Run(ctx context.Context, f *Flow) error {
	for f.Stage != StageComplete {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: f.Stage, Err: err}
		}
		if err := s.step(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// step executes the single stage the flow is parked at and advances it.
func (s *Seeder) step(ctx context.Context, f *Flow) error {
	log := s.logger.With(
		slog.Int64("market_id", f.MarketID),
		slog.String("stage", string(f.Stage)),
	)

	switch f.Stage {
	case StageCreated:
		if f.Amount <= 0 {
			// No seeding requested: short-circuit straight to completion.
			f.Stage = StageComplete
			return nil
		}
		f.Stage = StageAllowanceCheck
		return nil

	case StageAllowanceCheck:
		allowance, err := s.token.Allowance(ctx, f.Funder)
		if err != nil {
			return &StageError{Stage: StageAllowanceCheck, Err: err}
		}
		// Enough for both sides: skip the approval transaction.
		needed := new(big.Int).Mul(big.NewInt(f.Amount), big.NewInt(2))
		if allowance.Cmp(needed) >= 0 {
			log.Debug("allowance sufficient, skipping approve",
				slog.String("allowance", allowance.String()),
			)
			f.Stage = StageSeedYes
			return nil
		}
		f.Stage = StageApprove
		return nil

	case StageApprove:
		if err := s.token.Approve(ctx, MaxApproval); err != nil {
			return &StageError{Stage: StageApprove, Err: err}
		}
		log.Info("spending allowance approved")
		f.Stage = StageSeedYes
		return nil

	case StageSeedYes:
		if err := s.staker.Stake(ctx, f.MarketID, f.Funder, domain.OutcomeYes, f.Amount); err != nil {
			return &StageError{Stage: StageSeedYes, Err: err}
		}
		log.Info("seeded YES side", slog.Int64("amount", f.Amount))
		f.Stage = StageSeedNo
		return nil

	case StageSeedNo:
		if err := s.staker.Stake(ctx, f.MarketID, f.Funder, domain.OutcomeNo, f.Amount); err != nil {
			return &StageError{Stage: StageSeedNo, Err: err}
		}
		log.Info("seeded NO side", slog.Int64("amount", f.Amount))
		f.Stage = StageComplete
		return nil

	default:
		return &StageError{Stage: f.Stage, Err: fmt.Errorf("unknown stage")}
	}
}
