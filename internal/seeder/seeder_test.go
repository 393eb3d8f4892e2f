package seeder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

type fakeToken struct {
	allowance   *big.Int
	approveErr  error
	approvedAmt *big.Int
	calls       int
}

func (f *fakeToken) Allowance(_ context.Context, _ string) (*big.Int, error) {
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeToken) Approve(_ context.Context, amount *big.Int) error {
	f.calls++
	if f.approveErr != nil {
		return f.approveErr
	}
	f.approvedAmt = new(big.Int).Set(amount)
	f.allowance = new(big.Int).Set(amount)
	return nil
}

type stakeCall struct {
	marketID int64
	outcome  domain.Outcome
	amount   int64
}

type fakeStaker struct {
	calls    []stakeCall
	failOn   domain.Outcome
	failErr  error
	failOnce bool
}

func (f *fakeStaker) Stake(_ context.Context, marketID int64, _ string, outcome domain.Outcome, amount int64) error {
	if f.failErr != nil && outcome == f.failOn {
		err := f.failErr
		if f.failOnce {
			f.failErr = nil
		}
		return err
	}
	f.calls = append(f.calls, stakeCall{marketID: marketID, outcome: outcome, amount: amount})
	return nil
}

func newTestSeeder(token *fakeToken, staker *fakeStaker) *Seeder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(token, staker, logger)
}

func TestRun_FullFlowWithApproval(t *testing.T) {
	token := &fakeToken{allowance: big.NewInt(0)}
	staker := &fakeStaker{}
	s := newTestSeeder(token, staker)

	f := s.Start(1, "0xfunder", 5_000_000)
	require.NoError(t, s.Run(context.Background(), f))

	assert.Equal(t, StageComplete, f.Stage)
	assert.Equal(t, 1, token.calls)
	assert.Equal(t, 0, MaxApproval.Cmp(token.approvedAmt))
	require.Len(t, staker.calls, 2)
	assert.Equal(t, stakeCall{1, domain.OutcomeYes, 5_000_000}, staker.calls[0])
	assert.Equal(t, stakeCall{1, domain.OutcomeNo, 5_000_000}, staker.calls[1])
}

func TestRun_SkipsApproveWhenAllowanceCoversBothSides(t *testing.T) {
	token := &fakeToken{allowance: big.NewInt(10_000_000)}
	staker := &fakeStaker{}
	s := newTestSeeder(token, staker)

	f := s.Start(2, "0xfunder", 5_000_000)
	require.NoError(t, s.Run(context.Background(), f))

	assert.Equal(t, StageComplete, f.Stage)
	assert.Zero(t, token.calls)
	assert.Len(t, staker.calls, 2)
}

func TestRun_ApproveRequiredWhenAllowanceCoversOneSideOnly(t *testing.T) {
	token := &fakeToken{allowance: big.NewInt(9_999_999)}
	staker := &fakeStaker{}
	s := newTestSeeder(token, staker)

	f := s.Start(2, "0xfunder", 5_000_000)
	require.NoError(t, s.Run(context.Background(), f))
	assert.Equal(t, 1, token.calls)
}

func TestRun_NoSeedShortCircuits(t *testing.T) {
	token := &fakeToken{allowance: big.NewInt(0)}
	staker := &fakeStaker{}
	s := newTestSeeder(token, staker)

	f := s.Start(3, "0xfunder", 0)
	require.NoError(t, s.Run(context.Background(), f))

	assert.Equal(t, StageComplete, f.Stage)
	assert.Zero(t, token.calls)
	assert.Empty(t, staker.calls)
}

func TestRun_ApprovalFailureIsStageTagged(t *testing.T) {
	cause := errors.New("tx reverted")
	token := &fakeToken{allowance: big.NewInt(0), approveErr: cause}
	staker := &fakeStaker{}
	s := newTestSeeder(token, staker)

	f := s.Start(4, "0xfunder", 1_000_000)
	err := s.Run(context.Background(), f)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageApprove, stageErr.Stage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StageApprove, f.Stage)
	assert.Empty(t, staker.calls)
}

func TestRun_ResumesAfterSeedNoFailureWithoutDuplicatingSeedYes(t *testing.T) {
	token := &fakeToken{allowance: big.NewInt(100_000_000)}
	staker := &fakeStaker{failOn: domain.OutcomeNo, failErr: errors.New("nonce too low"), failOnce: true}
	s := newTestSeeder(token, staker)

	f := s.Start(5, "0xfunder", 2_000_000)

	err := s.Run(context.Background(), f)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSeedNo, stageErr.Stage)
	assert.Equal(t, StageSeedNo, f.Stage)
	// YES landed before the failure and is never rolled back.
	require.Len(t, staker.calls, 1)
	assert.Equal(t, domain.OutcomeYes, staker.calls[0].outcome)

	// Re-running the same flow executes only the remaining stage.
	require.NoError(t, s.Run(context.Background(), f))
	assert.Equal(t, StageComplete, f.Stage)
	require.Len(t, staker.calls, 2)
	assert.Equal(t, domain.OutcomeYes, staker.calls[0].outcome)
	assert.Equal(t, domain.OutcomeNo, staker.calls[1].outcome)
}

func TestRun_SeedYesFailureIsStageTagged(t *testing.T) {
	token := &fakeToken{allowance: big.NewInt(100_000_000)}
	staker := &fakeStaker{failOn: domain.OutcomeYes, failErr: errors.New("gas")}
	s := newTestSeeder(token, staker)

	f := s.Start(6, "0xfunder", 2_000_000)
	err := s.Run(context.Background(), f)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSeedYes, stageErr.Stage)
	assert.Empty(t, staker.calls)
}

func TestRun_CancelledContextLeavesFlowResumable(t *testing.T) {
	token := &fakeToken{allowance: big.NewInt(100_000_000)}
	staker := &fakeStaker{}
	s := newTestSeeder(token, staker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := s.Start(7, "0xfunder", 2_000_000)
	err := s.Run(ctx, f)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, StageComplete, f.Stage)

	// The abandoned flow is one of the defined intermediate states and
	// completes when re-run with a live context.
	require.NoError(t, s.Run(context.Background(), f))
	assert.Equal(t, StageComplete, f.Stage)
}
