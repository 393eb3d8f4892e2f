package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/engine"
	"github.com/alanyoungcy/stakehouse/internal/store/memory"
)

const owner = "0xAdMiN0000000000000000000000000000000001"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fakeBus records everything published and appended.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte), streamed: make(map[string][][]byte)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

// fakeLocks counts acquisitions to show the write path takes the lock.
type fakeLocks struct {
	mu       sync.Mutex
	acquired []string
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	l.acquired = append(l.acquired, key)
	l.mu.Unlock()
	return func() {}, nil
}

type fakeArchiver struct {
	mu    sync.Mutex
	calls int
}

func (a *fakeArchiver) ArchiveResolution(context.Context, domain.Market, []domain.Stake, []domain.Payout) error {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return nil
}

type fixture struct {
	clock    *fakeClock
	eng      *engine.Engine
	marketDB *memory.MarketStore
	stakeDB  *memory.StakeStore
	pointDB  *memory.PricePointStore
	payoutDB *memory.PayoutStore
	bus      *fakeBus
	locks    *fakeLocks
	archiver *fakeArchiver

	markets *MarketService
	stakes  *StakeService
	payouts *PayoutService
	prices  *PriceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stakeDB := memory.NewStakeStore()
	f := &fixture{
		clock:    &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()},
		marketDB: memory.NewMarketStore(),
		stakeDB:  stakeDB,
		pointDB:  memory.NewPricePointStore(),
		payoutDB: memory.NewPayoutStore(stakeDB),
		bus:      newFakeBus(),
		locks:    &fakeLocks{},
		archiver: &fakeArchiver{},
	}
	f.eng = engine.New(engine.Config{Owner: owner, MinStake: 1}, f.clock, logger)
	f.markets = NewMarketService(f.eng, f.marketDB, f.stakeDB, f.payoutDB, f.locks, f.bus, f.archiver, nil, logger)
	f.stakes = NewStakeService(f.eng, f.marketDB, f.stakeDB, f.pointDB, nil, f.locks, f.bus, logger)
	f.payouts = NewPayoutService(f.eng, f.stakeDB, f.payoutDB, f.locks, f.bus, logger)
	f.prices = NewPriceService(f.eng, nil, f.pointDB, f.clock, logger)
	return f
}

func (f *fixture) openMarket(t *testing.T) domain.Market {
	t.Helper()
	m, err := f.markets.Create(context.Background(), owner,
		"Will the launch happen this quarter?", "tech", "https://example.com/oracle",
		f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	return m
}

func TestCreatePersistsMarket(t *testing.T) {
	f := newFixture(t)
	m := f.openMarket(t)

	stored, err := f.marketDB.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Question, stored.Question)
	assert.Equal(t, [2]int64{0, 0}, stored.Pools)
}

func TestPlacePersistsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	ev, err := f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), ev.YesCents)

	stored, err := f.stakeDB.Get(ctx, m.ID, "0xAlice", domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), stored.Amount)

	updated, err := f.marketDB.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), updated.Pools[domain.OutcomeYes])

	points, err := f.pointDB.ListByMarket(ctx, m.ID, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(100), points[0].YesCents)
	assert.Equal(t, int64(0), points[0].NoCents)

	assert.Equal(t, 1, f.bus.count(domain.ChannelStakes))
	assert.Contains(t, f.locks.acquired, marketLockKey(m.ID))
}

func TestPlaceAccumulatesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, err := f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 1_000_000)
	require.NoError(t, err)
	_, err = f.stakes.Place(ctx, "0xBob", m.ID, domain.OutcomeNo, 1_000_000)
	require.NoError(t, err)
	_, err = f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 500_000)
	require.NoError(t, err)

	stored, err := f.stakeDB.Get(ctx, m.ID, "0xAlice", domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), stored.Amount, "store holds the cumulative balance")
}

func TestPlaceRejectionsLeaveNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, err := f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 1_000_000)
	require.NoError(t, err)

	// Opposite pool is empty, so this one must be rejected.
	_, err = f.stakes.Place(ctx, "0xBob", m.ID, domain.OutcomeYes, 1_000_000)
	require.ErrorIs(t, err, domain.ErrInsufficientLiquidity)

	points, err := f.pointDB.ListByMarket(ctx, m.ID, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, points, 1, "rejected stakes never reach the history")
	assert.Equal(t, 1, f.bus.count(domain.ChannelStakes))
}

func TestResolveAndClaimRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, err := f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 300_000)
	require.NoError(t, err)
	_, err = f.stakes.Place(ctx, "0xBob", m.ID, domain.OutcomeNo, 300_000)
	require.NoError(t, err)

	f.clock.Set(m.CloseTime.Add(time.Minute))
	resolved, err := f.markets.Resolve(ctx, owner, m.ID, domain.OutcomeYes, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(600_000), resolved.TotalPool)
	assert.Equal(t, 1, f.bus.count(domain.ChannelResolutions))
	assert.Equal(t, 1, f.archiver.calls)

	stored, err := f.marketDB.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.Resolved)

	payout, err := f.payouts.Claim(ctx, m.ID, "0xAlice")
	require.NoError(t, err)
	assert.Equal(t, int64(600_000), payout.Amount)

	zeroed, err := f.stakeDB.Get(ctx, m.ID, "0xAlice", domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(0), zeroed.Amount)

	_, err = f.payouts.Claim(ctx, m.ID, "0xAlice")
	require.ErrorIs(t, err, domain.ErrNoWinnings)

	recorded, err := f.payouts.ByMarket(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, int64(600_000), recorded[0].Amount)
	assert.Equal(t, 1, f.bus.count(domain.ChannelPayouts))
}

func TestRehydrateRestoresLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, err := f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 3_000_000)
	require.NoError(t, err)
	_, err = f.stakes.Place(ctx, "0xBob", m.ID, domain.OutcomeNo, 1_000_000)
	require.NoError(t, err)

	// Fresh engine over the same stores, as after a restart.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng2 := engine.New(engine.Config{Owner: owner, MinStake: 1}, f.clock, logger)
	svc2 := NewMarketService(eng2, f.marketDB, f.stakeDB, f.payoutDB, nil, nil, nil, nil, logger)
	require.NoError(t, svc2.Rehydrate(ctx))

	p, err := eng2.Prices(m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(75), p.YesCents)

	balance, err := eng2.UserStake(m.ID, "0xAlice", domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), balance)

	// New markets keep numbering above the restored ids.
	next, err := svc2.Create(ctx, owner, "Another question?", "tech", "", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Greater(t, next.ID, m.ID)
}

func TestLeaderboardOrdersByClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, err := f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 3_000_000)
	require.NoError(t, err)
	_, err = f.stakes.Place(ctx, "0xBob", m.ID, domain.OutcomeNo, 1_000_000)
	require.NoError(t, err)
	_, err = f.stakes.Place(ctx, "0xCarol", m.ID, domain.OutcomeYes, 1_000_000)
	require.NoError(t, err)

	f.clock.Set(m.CloseTime)
	_, err = f.markets.Resolve(ctx, owner, m.ID, domain.OutcomeYes, "")
	require.NoError(t, err)

	_, err = f.payouts.Claim(ctx, m.ID, "0xAlice")
	require.NoError(t, err)
	_, err = f.payouts.Claim(ctx, m.ID, "0xCarol")
	require.NoError(t, err)

	totals, err := f.payouts.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, "0xalice", totals[0].User)
	assert.Greater(t, totals[0].TotalClaimed, totals[1].TotalClaimed)

	// Bob never claimed, so only his outstanding stake counts.
	assert.Equal(t, "0xbob", totals[2].User)
	assert.Equal(t, int64(0), totals[2].TotalClaimed)
	assert.Equal(t, int64(1_000_000), totals[2].TotalStaked)
}

// failingStakeDB fails Upsert a set number of times before delegating.
type failingStakeDB struct {
	*memory.StakeStore
	failures int
}

func (s *failingStakeDB) Upsert(ctx context.Context, st domain.Stake) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	return s.StakeStore.Upsert(ctx, st)
}

// failingMarketDB fails writes a set number of times before delegating.
type failingMarketDB struct {
	*memory.MarketStore
	createFailures int
	updateFailures int
}

func (s *failingMarketDB) Create(ctx context.Context, m domain.Market) error {
	if s.createFailures > 0 {
		s.createFailures--
		return errors.New("connection refused")
	}
	return s.MarketStore.Create(ctx, m)
}

func (s *failingMarketDB) Update(ctx context.Context, m domain.Market) error {
	if s.updateFailures > 0 {
		s.updateFailures--
		return errors.New("connection refused")
	}
	return s.MarketStore.Update(ctx, m)
}

// failingPayoutDB fails Insert a set number of times before delegating.
type failingPayoutDB struct {
	*memory.PayoutStore
	failures int
}

func (s *failingPayoutDB) Insert(ctx context.Context, p domain.Payout) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	return s.PayoutStore.Insert(ctx, p)
}

func TestPlaceRollsBackLedgerWhenStakeWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flaky := &failingStakeDB{StakeStore: f.stakeDB, failures: 1}
	stakes := NewStakeService(f.eng, f.marketDB, flaky, f.pointDB, nil, f.locks, f.bus, logger)

	_, err := stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 2_000_000)
	require.Error(t, err)

	// The ledger holds no trace of the failed stake.
	pool, err := f.eng.OutcomePool(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pool)
	balance, err := f.eng.UserStake(m.ID, "0xAlice", domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, 0, f.bus.count(domain.ChannelStakes))

	// The retry starts clean and is not double counted.
	ev, err := stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), ev.YesCents)
	stored, err := f.stakeDB.Get(ctx, m.ID, "0xAlice", domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), stored.Amount)
}

func TestPlaceRollsBackLedgerWhenPoolWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flaky := &failingMarketDB{MarketStore: f.marketDB, updateFailures: 1}
	stakes := NewStakeService(f.eng, flaky, f.stakeDB, f.pointDB, nil, f.locks, f.bus, logger)

	_, err := stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 2_000_000)
	require.Error(t, err)

	p, err := f.eng.Prices(m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Prices{YesCents: 50, NoCents: 50}, p)

	_, err = stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 2_000_000)
	require.NoError(t, err)
	updated, err := f.marketDB.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), updated.Pools[domain.OutcomeYes])
}

func TestCreateRollsBackLedgerWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flaky := &failingMarketDB{MarketStore: f.marketDB, createFailures: 1}
	markets := NewMarketService(f.eng, flaky, f.stakeDB, f.payoutDB, f.locks, f.bus, nil, nil, logger)

	m, err := markets.Create(ctx, owner, "Will it rain tomorrow?", "weather", "",
		f.clock.Now().Add(time.Hour))
	require.Error(t, err)

	// The unpersisted market is not served from the ledger.
	_, err = f.eng.Market(m.ID)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	created, err := markets.Create(ctx, owner, "Will it rain tomorrow?", "weather", "",
		f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	stored, err := f.marketDB.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Question, stored.Question)
}

func TestResolveRollsBackLedgerWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, err := f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 300_000)
	require.NoError(t, err)
	_, err = f.stakes.Place(ctx, "0xBob", m.ID, domain.OutcomeNo, 300_000)
	require.NoError(t, err)

	f.clock.Set(m.CloseTime)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flaky := &failingMarketDB{MarketStore: f.marketDB, updateFailures: 1}
	markets := NewMarketService(f.eng, flaky, f.stakeDB, f.payoutDB, f.locks, f.bus, nil, nil, logger)

	_, err = markets.Resolve(ctx, owner, m.ID, domain.OutcomeYes, "0xabc")
	require.Error(t, err)

	// The market is still open for a retried resolution.
	current, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.False(t, current.Resolved)
	assert.Equal(t, 0, f.bus.count(domain.ChannelResolutions))

	ev, err := markets.Resolve(ctx, owner, m.ID, domain.OutcomeYes, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(600_000), ev.TotalPool)
	stored, err := f.marketDB.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.Resolved)
}

func TestClaimRollsBackLedgerWhenPayoutWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, err := f.stakes.Place(ctx, "0xAlice", m.ID, domain.OutcomeYes, 300_000)
	require.NoError(t, err)
	_, err = f.stakes.Place(ctx, "0xBob", m.ID, domain.OutcomeNo, 300_000)
	require.NoError(t, err)

	f.clock.Set(m.CloseTime)
	_, err = f.markets.Resolve(ctx, owner, m.ID, domain.OutcomeYes, "")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	flaky := &failingPayoutDB{PayoutStore: f.payoutDB, failures: 1}
	payouts := NewPayoutService(f.eng, f.stakeDB, flaky, f.locks, f.bus, logger)

	_, err = payouts.Claim(ctx, m.ID, "0xAlice")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrNoWinnings)

	// The winning balance survives the failed claim.
	balance, err := f.eng.UserStake(m.ID, "0xAlice", domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), balance)
	assert.Equal(t, 0, f.bus.count(domain.ChannelPayouts))

	// The retry pays out exactly once.
	ev, err := payouts.Claim(ctx, m.ID, "0xAlice")
	require.NoError(t, err)
	assert.Equal(t, int64(600_000), ev.Amount)
	recorded, err := payouts.ByMarket(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)

	_, err = payouts.Claim(ctx, m.ID, "0xAlice")
	require.ErrorIs(t, err, domain.ErrNoWinnings)
}

func TestPriceHistoryUnknownMarket(t *testing.T) {
	f := newFixture(t)
	_, err := f.prices.History(context.Background(), 42, domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestCurrentFallsBackToLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	p, err := f.prices.Current(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Prices{YesCents: 50, NoCents: 50}, p)
}
