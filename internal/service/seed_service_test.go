package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/seeder"
)

type fakeApprover struct {
	allowance *big.Int
}

func (f *fakeApprover) Allowance(context.Context, string) (*big.Int, error) {
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeApprover) Approve(_ context.Context, amount *big.Int) error {
	f.allowance = new(big.Int).Set(amount)
	return nil
}

// flakyStaker fails the first stake on a chosen outcome, then delegates.
type flakyStaker struct {
	inner  seeder.Staker
	failOn domain.Outcome

	mu     sync.Mutex
	failed bool
}

func (f *flakyStaker) Stake(ctx context.Context, marketID int64, user string, outcome domain.Outcome, amount int64) error {
	f.mu.Lock()
	shouldFail := outcome == f.failOn && !f.failed
	if shouldFail {
		f.failed = true
	}
	f.mu.Unlock()
	if shouldFail {
		return errors.New("rpc: connection reset")
	}
	return f.inner.Stake(ctx, marketID, user, outcome, amount)
}

func TestSeedFundsBothPools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sdr := seeder.New(&fakeApprover{allowance: big.NewInt(10_000_000)}, f.stakes, logger)
	seeds := NewSeedService(sdr, nil, logger)

	require.NoError(t, seeds.Seed(ctx, m.ID, owner, 500_000))

	p, err := f.prices.Current(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Prices{YesCents: 50, NoCents: 50}, p)

	yes, err := f.stakes.OutcomePool(ctx, m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	no, err := f.stakes.OutcomePool(ctx, m.ID, domain.OutcomeNo)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), yes)
	assert.Equal(t, int64(500_000), no)
	assert.Empty(t, seeds.Pending())
}

func TestSeedResumesWithoutDoubleFunding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flaky := &flakyStaker{inner: f.stakes, failOn: domain.OutcomeNo}
	sdr := seeder.New(&fakeApprover{allowance: big.NewInt(10_000_000)}, flaky, logger)
	seeds := NewSeedService(sdr, nil, logger)

	err := seeds.Seed(ctx, m.ID, owner, 500_000)
	require.Error(t, err)

	var stageErr *seeder.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, seeder.StageSeedNo, stageErr.Stage)
	assert.Equal(t, []int64{m.ID}, seeds.Pending())

	// Retry picks up at the failed step; the YES side is not funded twice.
	require.NoError(t, seeds.Seed(ctx, m.ID, owner, 500_000))

	yes, err := f.stakes.OutcomePool(ctx, m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), yes)
	assert.Empty(t, seeds.Pending())
}

func TestRetryLoopDrainsPendingFlows(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := f.openMarket(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flaky := &flakyStaker{inner: f.stakes, failOn: domain.OutcomeNo}
	sdr := seeder.New(&fakeApprover{allowance: big.NewInt(10_000_000)}, flaky, logger)
	seeds := NewSeedService(sdr, nil, logger)

	require.Error(t, seeds.Seed(ctx, m.ID, owner, 500_000))
	require.Equal(t, []int64{m.ID}, seeds.Pending())

	done := make(chan struct{})
	go func() {
		seeds.RetryLoop(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(seeds.Pending()) == 0 },
		time.Second, 5*time.Millisecond, "pending flow retried in the background")

	cancel()
	<-done

	no, err := f.stakes.OutcomePool(context.Background(), m.ID, domain.OutcomeNo)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), no)
}
