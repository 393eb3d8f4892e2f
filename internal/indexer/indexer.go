// Package indexer backfills the price history from on-chain stake logs.
//
// The contract emits one log per stake carrying the post-stake implied
// prices, so sweeping the log range reconstructs the same price timeline the
// service records for locally placed stakes.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/stakehouse/internal/chain"
	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// checkpointName keys the sweep cursor in the checkpoint store.
const checkpointName = "stake_logs"

// defaultChunkSize bounds the block span of a single FilterLogs call. Public
// RPC providers commonly cap eth_getLogs ranges around this size.
const defaultChunkSize = 2000

// LogSource is the slice of the RPC client the indexer reads from.
// *ethclient.Client satisfies it.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// StakeLogContract decodes stake logs for a bound market contract.
// *chain.Market satisfies it.
type StakeLogContract interface {
	Address() common.Address
	StakePlacedTopic() common.Hash
	ParseStakePlaced(types.Log) (chain.StakePlaced, error)
}

// Indexer sweeps BetPlaced logs into the price point store, resuming from a
// persisted block cursor.
type Indexer struct {
	source      LogSource
	contract    StakeLogContract
	points      domain.PricePointStore
	checkpoints domain.CheckpointStore
	startBlock  uint64
	chunkSize   uint64
	logger      *slog.Logger
}

// New creates an Indexer. startBlock is the deployment block of the market
// contract; sweeps never begin before it.
func New(
	source LogSource,
	contract StakeLogContract,
	points domain.PricePointStore,
	checkpoints domain.CheckpointStore,
	startBlock uint64,
	logger *slog.Logger,
) *Indexer {
	return &Indexer{
		source:      source,
		contract:    contract,
		points:      points,
		checkpoints: checkpoints,
		startBlock:  startBlock,
		chunkSize:   defaultChunkSize,
		logger:      logger,
	}
}

// SetChunkSize overrides the FilterLogs span per query. Values below 1 keep
// the current size.
func (ix *Indexer) SetChunkSize(n uint64) {
	if n >= 1 {
		ix.chunkSize = n
	}
}

// Run executes a single sweep from the saved cursor to the current head.
// The cursor advances chunk by chunk, so a sweep interrupted mid-range
// resumes without re-scanning completed chunks.
func (ix *Indexer) Run(ctx context.Context) error {
	cursor, err := ix.checkpoints.LoadCheckpoint(ctx, checkpointName)
	if err != nil {
		return err
	}
	if cursor < ix.startBlock {
		cursor = ix.startBlock
	}

	head, err := ix.source.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("indexer: fetching head block: %w", err)
	}
	if head <= cursor {
		return nil
	}

	indexed := 0
	for from := cursor + 1; from <= head; from += ix.chunkSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("indexer: sweep cancelled: %w", err)
		}

		to := from + ix.chunkSize - 1
		if to > head {
			to = head
		}

		n, err := ix.sweepRange(ctx, from, to)
		if err != nil {
			return err
		}
		indexed += n

		if err := ix.checkpoints.SaveCheckpoint(ctx, checkpointName, to); err != nil {
			return err
		}
	}

	if indexed > 0 {
		ix.logger.Info("stake log sweep complete",
			slog.Uint64("from", cursor+1),
			slog.Uint64("to", head),
			slog.Int("logs", indexed),
		)
	}
	return nil
}

// RunLoop runs sweeps on a repeating interval until the context is cancelled.
func (ix *Indexer) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := ix.Run(ctx); err != nil {
		ix.logger.Error("stake log sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ix.logger.Info("indexer loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := ix.Run(ctx); err != nil {
				ix.logger.Error("stake log sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (ix *Indexer) sweepRange(ctx context.Context, from, to uint64) (int, error) {
	logs, err := ix.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{ix.contract.Address()},
		Topics:    [][]common.Hash{{ix.contract.StakePlacedTopic()}},
	})
	if err != nil {
		return 0, fmt.Errorf("indexer: filtering logs [%d,%d]: %w", from, to, err)
	}

	// Block timestamps are shared by every log in the block.
	blockTimes := make(map[uint64]time.Time)

	indexed := 0
	for _, lg := range logs {
		ev, err := ix.contract.ParseStakePlaced(lg)
		if err != nil {
			ix.logger.Error("skipping undecodable stake log",
				slog.String("tx", lg.TxHash.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}

		at, ok := blockTimes[ev.BlockNumber]
		if !ok {
			header, err := ix.source.HeaderByNumber(ctx, new(big.Int).SetUint64(ev.BlockNumber))
			if err != nil {
				return indexed, fmt.Errorf("indexer: fetching header %d: %w", ev.BlockNumber, err)
			}
			at = time.Unix(int64(header.Time), 0).UTC()
			blockTimes[ev.BlockNumber] = at
		}

		point := domain.PricePoint{
			MarketID:  ev.MarketID.Int64(),
			Timestamp: at,
			YesCents:  ev.YesPrice.Int64(),
			NoCents:   ev.NoPrice.Int64(),
			Outcome:   domain.Outcome(ev.Outcome.Int64()),
			Amount:    ev.Amount.Int64(),
			User:      ev.User.Hex(),
		}
		if err := ix.points.Append(ctx, point); err != nil {
			return indexed, fmt.Errorf("indexer: appending price point for market %d: %w", point.MarketID, err)
		}
		indexed++
	}
	return indexed, nil
}
