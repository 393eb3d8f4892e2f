package indexer

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakehouse/internal/chain"
	"github.com/alanyoungcy/stakehouse/internal/domain"
	"github.com/alanyoungcy/stakehouse/internal/store/memory"
)

var contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type fakeSource struct {
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
}

func (f *fakeSource) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= q.FromBlock.Uint64() && lg.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (f *fakeSource) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeSource) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Time: 1_700_000_000 + number.Uint64()}, nil
}

// fakeContract hands back canned decodes keyed by tx hash.
type fakeContract struct {
	decoded map[common.Hash]chain.StakePlaced
}

func (f *fakeContract) Address() common.Address        { return contractAddr }
func (f *fakeContract) StakePlacedTopic() common.Hash  { return common.HexToHash("0x01") }
func (f *fakeContract) ParseStakePlaced(lg types.Log) (chain.StakePlaced, error) {
	ev := f.decoded[lg.TxHash]
	ev.BlockNumber = lg.BlockNumber
	ev.TxHash = lg.TxHash
	return ev, nil
}

type memCheckpoints struct {
	saved map[string]uint64
}

func (m *memCheckpoints) LoadCheckpoint(_ context.Context, name string) (uint64, error) {
	return m.saved[name], nil
}

func (m *memCheckpoints) SaveCheckpoint(_ context.Context, name string, v uint64) error {
	if m.saved == nil {
		m.saved = make(map[string]uint64)
	}
	m.saved[name] = v
	return nil
}

func stakeLog(block uint64, tx byte) types.Log {
	return types.Log{BlockNumber: block, TxHash: common.Hash{tx}}
}

func TestRunIndexesLogsIntoPricePoints(t *testing.T) {
	src := &fakeSource{
		head: 120,
		logs: []types.Log{stakeLog(101, 1), stakeLog(110, 2)},
	}
	contract := &fakeContract{decoded: map[common.Hash]chain.StakePlaced{
		{1}: {MarketID: big.NewInt(7), User: common.HexToAddress("0x11"), Outcome: big.NewInt(1), Amount: big.NewInt(1_000_000), YesPrice: big.NewInt(60), NoPrice: big.NewInt(40)},
		{2}: {MarketID: big.NewInt(7), User: common.HexToAddress("0x22"), Outcome: big.NewInt(1), Amount: big.NewInt(2_000_000), YesPrice: big.NewInt(75), NoPrice: big.NewInt(25)},
	}}
	points := memory.NewPricePointStore()
	cps := &memCheckpoints{}

	ix := New(src, contract, points, cps, 100, testLogger())
	require.NoError(t, ix.Run(context.Background()))

	got, err := points.ListByMarket(context.Background(), 7, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(60), got[0].YesCents)
	assert.Equal(t, int64(40), got[0].NoCents)
	assert.Equal(t, int64(75), got[1].YesCents)
	assert.True(t, got[1].Timestamp.After(got[0].Timestamp))

	assert.Equal(t, uint64(120), cps.saved[checkpointName], "cursor advances to head")
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	src := &fakeSource{head: 200, logs: []types.Log{stakeLog(150, 3)}}
	contract := &fakeContract{decoded: map[common.Hash]chain.StakePlaced{
		{3}: {MarketID: big.NewInt(1), User: common.HexToAddress("0x33"), Outcome: big.NewInt(0), Amount: big.NewInt(1), YesPrice: big.NewInt(50), NoPrice: big.NewInt(50)},
	}}
	cps := &memCheckpoints{saved: map[string]uint64{checkpointName: 140}}

	ix := New(src, contract, memory.NewPricePointStore(), cps, 100, testLogger())
	require.NoError(t, ix.Run(context.Background()))

	require.NotEmpty(t, src.queries)
	assert.Equal(t, uint64(141), src.queries[0].FromBlock.Uint64(), "sweep starts after saved cursor")
}

func TestRunChunksLargeRanges(t *testing.T) {
	src := &fakeSource{head: 5000}
	ix := New(src, &fakeContract{}, memory.NewPricePointStore(), &memCheckpoints{}, 0,
		testLogger())
	require.NoError(t, ix.Run(context.Background()))

	require.Len(t, src.queries, 3)
	for _, q := range src.queries {
		span := q.ToBlock.Uint64() - q.FromBlock.Uint64() + 1
		assert.LessOrEqual(t, span, uint64(defaultChunkSize))
	}
}

func TestRunNoNewBlocksIsNoop(t *testing.T) {
	src := &fakeSource{head: 100}
	cps := &memCheckpoints{saved: map[string]uint64{checkpointName: 100}}
	ix := New(src, &fakeContract{}, memory.NewPricePointStore(), cps,
		0, testLogger())

	require.NoError(t, ix.Run(context.Background()))
	assert.Empty(t, src.queries)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
