package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// marketABI covers the prediction market contract surface the service and
// indexer use: market admin, staking, claims, views, and the BetPlaced event.
const marketABI = `[
  {"type":"function","name":"createMarket","stateMutability":"nonpayable",
   "inputs":[{"name":"_question","type":"string"},{"name":"_marketType","type":"string"},
             {"name":"_oracleUrl","type":"string"},{"name":"_closeTime","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"placeBet","stateMutability":"nonpayable",
   "inputs":[{"name":"_marketId","type":"uint256"},{"name":"_outcome","type":"uint8"},
             {"name":"_amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"claimWinnings","stateMutability":"nonpayable",
   "inputs":[{"name":"_marketId","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"resolveMarket","stateMutability":"nonpayable",
   "inputs":[{"name":"_marketId","type":"uint256"},{"name":"_winningOutcome","type":"uint8"},
             {"name":"_txHash","type":"bytes32"}],
   "outputs":[]},
  {"type":"function","name":"marketCounter","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getMarketInfo","stateMutability":"view",
   "inputs":[{"name":"_marketId","type":"uint256"}],
   "outputs":[{"name":"question","type":"string"},{"name":"marketType","type":"string"},
              {"name":"oracleUrl","type":"string"},{"name":"closeTime","type":"uint256"},
              {"name":"resolved","type":"bool"},{"name":"winningOutcome","type":"uint8"},
              {"name":"totalPool","type":"uint256"}]},
  {"type":"function","name":"getUserBet","stateMutability":"view",
   "inputs":[{"name":"_marketId","type":"uint256"},{"name":"_user","type":"address"},
             {"name":"_outcome","type":"uint8"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getOutcomePool","stateMutability":"view",
   "inputs":[{"name":"_marketId","type":"uint256"},{"name":"_outcome","type":"uint8"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPrices","stateMutability":"view",
   "inputs":[{"name":"_marketId","type":"uint256"}],
   "outputs":[{"name":"yesPriceCents","type":"uint256"},{"name":"noPriceCents","type":"uint256"}]},
  {"type":"event","name":"BetPlaced","anonymous":false,
   "inputs":[{"name":"marketId","type":"uint256","indexed":true},
             {"name":"user","type":"address","indexed":true},
             {"name":"outcome","type":"uint256","indexed":false},
             {"name":"amount","type":"uint256","indexed":false},
             {"name":"yesPrice","type":"uint256","indexed":false},
             {"name":"noPrice","type":"uint256","indexed":false}]}
]`

// Market is a bound prediction market contract.
type Market struct {
	client   *Client
	parsed   abi.ABI
	contract *bind.BoundContract
	address  common.Address
}

// MarketInfo is the getMarketInfo view result.
type MarketInfo struct {
	Question       string
	MarketType     string
	OracleURL      string
	CloseTime      *big.Int
	Resolved       bool
	WinningOutcome uint8
	TotalPool      *big.Int
}

// StakePlaced is a decoded BetPlaced log. Prices are the post-stake implied
// prices in cents, as emitted by the contract.
type StakePlaced struct {
	MarketID *big.Int
	User     common.Address
	Outcome  *big.Int
	Amount   *big.Int
	YesPrice *big.Int
	NoPrice  *big.Int

	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// NewMarket binds the prediction market contract at addr.
func NewMarket(client *Client, addr common.Address) (*Market, error) {
	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing market abi: %w", err)
	}
	eth := client.Backend()
	return &Market{
		client:   client,
		parsed:   parsed,
		contract: bind.NewBoundContract(addr, parsed, eth, eth, eth),
		address:  addr,
	}, nil
}

// Address returns the market contract address.
func (m *Market) Address() common.Address { return m.address }

// StakePlacedTopic returns the BetPlaced event signature hash, for use in
// log filter queries.
func (m *Market) StakePlacedTopic() common.Hash {
	return m.parsed.Events["BetPlaced"].ID
}

// CreateMarket submits a createMarket transaction and waits for it to mine.
// closeTime is seconds since the Unix epoch.
func (m *Market) CreateMarket(ctx context.Context, question, marketType, oracleURL string, closeTime int64) error {
	opts, err := m.client.transactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := m.contract.Transact(opts, "createMarket",
		question, marketType, oracleURL, big.NewInt(closeTime))
	if err != nil {
		return fmt.Errorf("chain: createMarket tx: %w", err)
	}
	return m.waitMined(ctx, "createMarket", tx)
}

// PlaceStake stakes amount micro-tokens on outcome in the given market.
func (m *Market) PlaceStake(ctx context.Context, marketID int64, outcome domain.Outcome, amount *big.Int) error {
	opts, err := m.client.transactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := m.contract.Transact(opts, "placeBet",
		big.NewInt(marketID), uint8(outcome), amount)
	if err != nil {
		return fmt.Errorf("chain: placeBet tx: %w", err)
	}
	return m.waitMined(ctx, "placeBet", tx)
}

// ClaimWinnings claims the operator's payout from a resolved market.
func (m *Market) ClaimWinnings(ctx context.Context, marketID int64) error {
	opts, err := m.client.transactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := m.contract.Transact(opts, "claimWinnings", big.NewInt(marketID))
	if err != nil {
		return fmt.Errorf("chain: claimWinnings tx: %w", err)
	}
	return m.waitMined(ctx, "claimWinnings", tx)
}

// ResolveMarket resolves a market to winner, citing evidenceRef (an oracle
// transaction hash or zero when none applies).
func (m *Market) ResolveMarket(ctx context.Context, marketID int64, winner domain.Outcome, evidenceRef common.Hash) error {
	opts, err := m.client.transactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := m.contract.Transact(opts, "resolveMarket",
		big.NewInt(marketID), uint8(winner), evidenceRef)
	if err != nil {
		return fmt.Errorf("chain: resolveMarket tx: %w", err)
	}
	return m.waitMined(ctx, "resolveMarket", tx)
}

// MarketCounter returns the number of markets ever created on the contract.
func (m *Market) MarketCounter(ctx context.Context) (int64, error) {
	var out []interface{}
	if err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "marketCounter"); err != nil {
		return 0, fmt.Errorf("chain: marketCounter call: %w", err)
	}
	return out[0].(*big.Int).Int64(), nil
}

// GetMarketInfo fetches the on-chain snapshot of a market.
func (m *Market) GetMarketInfo(ctx context.Context, marketID int64) (MarketInfo, error) {
	var out []interface{}
	if err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getMarketInfo", big.NewInt(marketID)); err != nil {
		return MarketInfo{}, fmt.Errorf("chain: getMarketInfo call: %w", err)
	}
	return MarketInfo{
		Question:       out[0].(string),
		MarketType:     out[1].(string),
		OracleURL:      out[2].(string),
		CloseTime:      out[3].(*big.Int),
		Resolved:       out[4].(bool),
		WinningOutcome: out[5].(uint8),
		TotalPool:      out[6].(*big.Int),
	}, nil
}

// GetUserStake returns user's stake on outcome in micro-tokens.
func (m *Market) GetUserStake(ctx context.Context, marketID int64, user common.Address, outcome domain.Outcome) (*big.Int, error) {
	var out []interface{}
	if err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserBet",
		big.NewInt(marketID), user, uint8(outcome)); err != nil {
		return nil, fmt.Errorf("chain: getUserBet call: %w", err)
	}
	return out[0].(*big.Int), nil
}

// GetOutcomePool returns the total staked on outcome in micro-tokens.
func (m *Market) GetOutcomePool(ctx context.Context, marketID int64, outcome domain.Outcome) (*big.Int, error) {
	var out []interface{}
	if err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getOutcomePool",
		big.NewInt(marketID), uint8(outcome)); err != nil {
		return nil, fmt.Errorf("chain: getOutcomePool call: %w", err)
	}
	return out[0].(*big.Int), nil
}

// GetPrices returns the implied YES and NO prices in cents.
func (m *Market) GetPrices(ctx context.Context, marketID int64) (domain.Prices, error) {
	var out []interface{}
	if err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPrices", big.NewInt(marketID)); err != nil {
		return domain.Prices{}, fmt.Errorf("chain: getPrices call: %w", err)
	}
	return domain.Prices{
		YesCents: out[0].(*big.Int).Int64(),
		NoCents:  out[1].(*big.Int).Int64(),
	}, nil
}

// ParseStakePlaced decodes a BetPlaced log emitted by this contract.
func (m *Market) ParseStakePlaced(log types.Log) (StakePlaced, error) {
	ev := struct {
		MarketId *big.Int
		User     common.Address
		Outcome  *big.Int
		Amount   *big.Int
		YesPrice *big.Int
		NoPrice  *big.Int
	}{}
	if err := m.contract.UnpackLog(&ev, "BetPlaced", log); err != nil {
		return StakePlaced{}, fmt.Errorf("chain: unpacking BetPlaced log: %w", err)
	}
	return StakePlaced{
		MarketID:    ev.MarketId,
		User:        ev.User,
		Outcome:     ev.Outcome,
		Amount:      ev.Amount,
		YesPrice:    ev.YesPrice,
		NoPrice:     ev.NoPrice,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}

func (m *Market) waitMined(ctx context.Context, label string, tx *types.Transaction) error {
	receipt, err := bind.WaitMined(ctx, m.client.Backend(), tx)
	if err != nil {
		return fmt.Errorf("chain: waiting for %s %s: %w", label, tx.Hash(), err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("chain: %s %s reverted", label, tx.Hash())
	}
	return nil
}
