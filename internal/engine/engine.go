// Package engine implements the authoritative ledger for binary-outcome
// prediction markets: pool accounting, implied pricing, the market lifecycle
// state machine, and proportional settlement. It reproduces the on-chain
// contract's accounting rules exactly and holds no transport or storage
// concerns; persistence and event publication are layered on top by the
// service package.
package engine

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// DefaultMinStake is 1 whole token in micro-units.
const DefaultMinStake int64 = 1_000_000

// Config carries the engine's policy parameters.
type Config struct {
	// Owner is the principal allowed to create and resolve markets.
	Owner string
	// MinStake is the smallest accepted stake in micro-units. Zero selects
	// DefaultMinStake.
	MinStake int64
}

// marketState is a market plus its per-user stake balances, guarded by its
// own mutex so stakes on different markets never contend.
type marketState struct {
	mu     sync.Mutex
	market domain.Market
	stakes map[string]*[2]int64 // user -> amount per outcome
}

// Engine is the in-memory ledger. All mutating operations are atomic per
// market: the pool update, the starvation check, and the derived price pair
// are computed under a single market lock.
type Engine struct {
	mu       sync.RWMutex
	markets  map[int64]*marketState
	nextID   int64
	owner    string
	minStake int64
	clock    domain.Clock
	logger   *slog.Logger
}

// New creates an Engine with the given policy. Market ids are assigned
// sequentially starting at 1.
func New(cfg Config, clock domain.Clock, logger *slog.Logger) *Engine {
	minStake := cfg.MinStake
	if minStake <= 0 {
		minStake = DefaultMinStake
	}
	return &Engine{
		markets:  make(map[int64]*marketState),
		nextID:   1,
		owner:    strings.ToLower(cfg.Owner),
		minStake: minStake,
		clock:    clock,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// CreateMarket opens a new market. Only the owner may create markets, and
// the close time must be strictly in the future.
func (e *Engine) CreateMarket(caller, question, marketType, oracleURL string, closeTime time.Time) (domain.Market, error) {
	if !e.isOwner(caller) {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", domain.ErrUnauthorized)
	}
	now := e.clock.Now()
	if !closeTime.After(now) {
		return domain.Market{}, fmt.Errorf("engine: close time %s: %w",
			closeTime.UTC().Format(time.RFC3339), domain.ErrInvalidCloseTime)
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	m := domain.Market{
		ID:         id,
		Question:   question,
		MarketType: marketType,
		OracleURL:  oracleURL,
		CloseTime:  closeTime.UTC(),
		CreatedAt:  now,
	}
	e.markets[id] = &marketState{
		market: m,
		stakes: make(map[string]*[2]int64),
	}
	e.mu.Unlock()

	e.logger.Info("market created",
		slog.Int64("market_id", id),
		slog.String("question", question),
		slog.Time("close_time", m.CloseTime),
	)
	return m, nil
}

// Stake adds amount micro-units to the given outcome pool on behalf of user.
// It enforces the minimum stake, the close-time boundary (staking is allowed
// strictly before close time), and the starvation guard: once a market holds
// any liquidity, a side whose opposite pool is still empty accepts no
// further stakes. The returned event carries the post-stake implied prices,
// computed under the same lock as the pool update.
func (e *Engine) Stake(user string, marketID int64, outcome domain.Outcome, amount int64) (domain.StakeEvent, error) {
	if !outcome.Valid() {
		return domain.StakeEvent{}, fmt.Errorf("engine: outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	if amount < e.minStake {
		return domain.StakeEvent{}, fmt.Errorf("engine: stake %d below minimum %d: %w",
			amount, e.minStake, domain.ErrInvalidAmount)
	}

	ms, err := e.state(marketID)
	if err != nil {
		return domain.StakeEvent{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := e.clock.Now()
	if ms.market.Resolved || !now.Before(ms.market.CloseTime) {
		return domain.StakeEvent{}, fmt.Errorf("engine: market %d: %w", marketID, domain.ErrMarketClosed)
	}

	// Starvation guard. The very first stake may land on either side; after
	// that, a side stays blocked until the opposite pool is funded.
	if ms.market.TotalPool() > 0 && ms.market.Pools[outcome.Opposite()] == 0 {
		return domain.StakeEvent{}, fmt.Errorf("engine: market %d %s side: %w",
			marketID, outcome, domain.ErrInsufficientLiquidity)
	}

	ms.market.Pools[outcome] += amount
	balances, ok := ms.stakes[user]
	if !ok {
		balances = new([2]int64)
		ms.stakes[user] = balances
	}
	balances[outcome] += amount

	p := impliedPrices(ms.market.Pools)
	ev := domain.StakeEvent{
		MarketID: marketID,
		User:     user,
		Outcome:  outcome,
		Amount:   amount,
		YesCents: p.YesCents,
		NoCents:  p.NoCents,
		At:       now,
	}

	e.logger.Debug("stake accepted",
		slog.Int64("market_id", marketID),
		slog.String("user", user),
		slog.String("outcome", outcome.String()),
		slog.Int64("amount", amount),
		slog.Int64("yes_cents", p.YesCents),
		slog.Int64("no_cents", p.NoCents),
	)
	return ev, nil
}

// Resolve declares the winning outcome. It requires the owner, a market past
// its close time (the boundary is inclusive: resolution is allowed at
// exactly close time), and is a one-shot irreversible transition. The
// evidence reference is recorded for audit, not validated.
func (e *Engine) Resolve(caller string, marketID int64, winner domain.Outcome, evidenceRef string) (domain.ResolvedEvent, error) {
	if !e.isOwner(caller) {
		return domain.ResolvedEvent{}, fmt.Errorf("engine: resolve market %d: %w", marketID, domain.ErrUnauthorized)
	}
	if !winner.Valid() {
		return domain.ResolvedEvent{}, fmt.Errorf("engine: outcome %d: %w", winner, domain.ErrInvalidOutcome)
	}

	ms, err := e.state(marketID)
	if err != nil {
		return domain.ResolvedEvent{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.market.Resolved {
		return domain.ResolvedEvent{}, fmt.Errorf("engine: market %d: %w", marketID, domain.ErrMarketAlreadyResolved)
	}
	now := e.clock.Now()
	if now.Before(ms.market.CloseTime) {
		return domain.ResolvedEvent{}, fmt.Errorf("engine: market %d: %w", marketID, domain.ErrMarketNotYetClosed)
	}

	ms.market.Resolved = true
	ms.market.WinningOutcome = winner
	ms.market.EvidenceRef = evidenceRef
	ms.market.ResolvedAt = &now

	e.logger.Info("market resolved",
		slog.Int64("market_id", marketID),
		slog.String("winner", winner.String()),
		slog.String("evidence", evidenceRef),
	)
	return domain.ResolvedEvent{
		MarketID:       marketID,
		WinningOutcome: winner,
		EvidenceRef:    evidenceRef,
		TotalPool:      ms.market.TotalPool(),
		At:             now,
	}, nil
}

// Claimable computes the payout owed to user on a resolved market:
// stake * totalPool / pool[winner], multiply-before-divide in big.Int so no
// precision is lost. It returns ErrNoWinnings when the market is unresolved,
// the user holds nothing on the winning side, or nobody backed the winning
// side (the degenerate zero-pool case never divides).
func (e *Engine) Claimable(marketID int64, user string) (int64, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return 0, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	return claimableLocked(ms, user)
}

// Claim pays out the user's proportional share of the total pool and zeroes
// the winning-side stake record. Zeroing is the exactly-once marker: a
// second claim finds no stake and fails with ErrNoWinnings.
func (e *Engine) Claim(marketID int64, user string) (domain.PayoutEvent, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.PayoutEvent{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	payout, err := claimableLocked(ms, user)
	if err != nil {
		return domain.PayoutEvent{}, err
	}

	ms.stakes[user][ms.market.WinningOutcome] = 0

	ev := domain.PayoutEvent{
		MarketID: marketID,
		User:     user,
		Amount:   payout,
		At:       e.clock.Now(),
	}
	e.logger.Info("winnings claimed",
		slog.Int64("market_id", marketID),
		slog.String("user", user),
		slog.Int64("amount", payout),
	)
	return ev, nil
}

// DropMarket removes a market whose persistence failed. Assigned ids are
// never reused.
func (e *Engine) DropMarket(marketID int64) {
	e.mu.Lock()
	delete(e.markets, marketID)
	e.mu.Unlock()
}

// UnwindResolve clears a resolution whose persistence failed, returning the
// market to its closed, unresolved state so resolution can be retried.
func (e *Engine) UnwindResolve(marketID int64) error {
	ms, err := e.state(marketID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.market.Resolved = false
	ms.market.WinningOutcome = domain.OutcomeNo
	ms.market.EvidenceRef = ""
	ms.market.ResolvedAt = nil
	return nil
}

// UnwindStake reverses a stake whose persistence failed, removing amount
// from the user's balance and the outcome pool. Callers must pass the exact
// parameters of a stake previously accepted; this is the write path's
// rollback hook, not a withdrawal surface.
func (e *Engine) UnwindStake(marketID int64, user string, outcome domain.Outcome, amount int64) error {
	if !outcome.Valid() {
		return fmt.Errorf("engine: outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	ms, err := e.state(marketID)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	balances, ok := ms.stakes[user]
	if !ok || balances[outcome] < amount || ms.market.Pools[outcome] < amount {
		return fmt.Errorf("engine: unwind %d for %s on market %d: %w",
			amount, user, marketID, domain.ErrInvalidAmount)
	}
	balances[outcome] -= amount
	ms.market.Pools[outcome] -= amount
	return nil
}

// ReinstateStake restores a winning balance zeroed by Claim whose payout
// record failed to persist, so the claim can be retried.
func (e *Engine) ReinstateStake(marketID int64, user string, outcome domain.Outcome, amount int64) error {
	if !outcome.Valid() {
		return fmt.Errorf("engine: outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	ms, err := e.state(marketID)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	balances, ok := ms.stakes[user]
	if !ok {
		balances = new([2]int64)
		ms.stakes[user] = balances
	}
	balances[outcome] += amount
	return nil
}

func claimableLocked(ms *marketState, user string) (int64, error) {
	if !ms.market.Resolved {
		return 0, fmt.Errorf("engine: market %d unresolved: %w", ms.market.ID, domain.ErrNoWinnings)
	}
	winner := ms.market.WinningOutcome
	winPool := ms.market.Pools[winner]
	if winPool == 0 {
		return 0, fmt.Errorf("engine: market %d winning pool empty: %w", ms.market.ID, domain.ErrNoWinnings)
	}
	balances, ok := ms.stakes[user]
	if !ok || balances[winner] == 0 {
		return 0, fmt.Errorf("engine: market %d user %s: %w", ms.market.ID, user, domain.ErrNoWinnings)
	}

	payout := new(big.Int).SetInt64(balances[winner])
	payout.Mul(payout, big.NewInt(ms.market.TotalPool()))
	payout.Div(payout, big.NewInt(winPool))
	return payout.Int64(), nil
}

// Prices returns the current implied price pair. An empty market reads
// (50, 50).
func (e *Engine) Prices(marketID int64) (domain.Prices, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Prices{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return impliedPrices(ms.market.Pools), nil
}

// impliedPrices derives each side's price in integer cents from its pool
// share, rounding half up. The two sides round independently and may not sum
// to exactly 100; downstream consumers depend on the raw values.
func impliedPrices(pools [2]int64) domain.Prices {
	total := pools[domain.OutcomeNo] + pools[domain.OutcomeYes]
	if total == 0 {
		return domain.Prices{YesCents: 50, NoCents: 50}
	}
	return domain.Prices{
		YesCents: (pools[domain.OutcomeYes]*100 + total/2) / total,
		NoCents:  (pools[domain.OutcomeNo]*100 + total/2) / total,
	}
}

// Market returns a snapshot of the market's current state.
func (e *Engine) Market(marketID int64) (domain.Market, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Market{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.market, nil
}

// MarketInfo returns the query-surface view of a market.
func (e *Engine) MarketInfo(marketID int64) (domain.MarketInfo, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return domain.MarketInfo{}, err
	}
	return domain.MarketInfo{
		ID:             m.ID,
		Question:       m.Question,
		MarketType:     m.MarketType,
		OracleURL:      m.OracleURL,
		CloseTime:      m.CloseTime.Unix(),
		Resolved:       m.Resolved,
		WinningOutcome: m.WinningOutcome,
		TotalPool:      m.TotalPool(),
	}, nil
}

// MarketCount returns the number of markets ever created.
func (e *Engine) MarketCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nextID - 1
}

// OutcomePool returns the staked total for one side of a market.
func (e *Engine) OutcomePool(marketID int64, outcome domain.Outcome) (int64, error) {
	if !outcome.Valid() {
		return 0, fmt.Errorf("engine: outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	m, err := e.Market(marketID)
	if err != nil {
		return 0, err
	}
	return m.Pools[outcome], nil
}

// UserStake returns the user's current balance on one side of a market.
// Unknown users read zero.
func (e *Engine) UserStake(marketID int64, user string, outcome domain.Outcome) (int64, error) {
	if !outcome.Valid() {
		return 0, fmt.Errorf("engine: outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	ms, err := e.state(marketID)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	balances, ok := ms.stakes[user]
	if !ok {
		return 0, nil
	}
	return balances[outcome], nil
}

// Stakes returns every non-zero stake balance on a market.
func (e *Engine) Stakes(marketID int64) ([]domain.Stake, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]domain.Stake, 0, len(ms.stakes))
	for user, balances := range ms.stakes {
		for _, o := range []domain.Outcome{domain.OutcomeNo, domain.OutcomeYes} {
			if balances[o] > 0 {
				out = append(out, domain.Stake{
					MarketID: marketID,
					User:     user,
					Outcome:  o,
					Amount:   balances[o],
				})
			}
		}
	}
	return out, nil
}

// Restore loads a persisted market and its stake balances into the ledger,
// used to rehydrate the engine from the store at startup. The next market id
// always stays above every restored id.
func (e *Engine) Restore(m domain.Market, stakes []domain.Stake) {
	ms := &marketState{
		market: m,
		stakes: make(map[string]*[2]int64, len(stakes)),
	}
	for _, s := range stakes {
		balances, ok := ms.stakes[s.User]
		if !ok {
			balances = new([2]int64)
			ms.stakes[s.User] = balances
		}
		balances[s.Outcome] = s.Amount
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.markets[m.ID] = ms
	if m.ID >= e.nextID {
		e.nextID = m.ID + 1
	}
}

func (e *Engine) state(marketID int64) (*marketState, error) {
	e.mu.RLock()
	ms, ok := e.markets[marketID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: market %d: %w", marketID, domain.ErrMarketNotFound)
	}
	return ms, nil
}

func (e *Engine) isOwner(caller string) bool {
	return e.owner != "" && strings.EqualFold(caller, e.owner)
}
