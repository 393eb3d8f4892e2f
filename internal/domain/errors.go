package domain

import "errors"

var (
	// ErrNotFound is returned by stores and caches for missing records.
	ErrNotFound = errors.New("not found")

	// ErrMarketNotFound is returned when the referenced market id does not
	// exist in the ledger.
	ErrMarketNotFound = errors.New("market not found")

	// ErrMarketClosed rejects stakes on a market that is past its close
	// time or already resolved.
	ErrMarketClosed = errors.New("market closed")

	// ErrMarketAlreadyResolved rejects a second resolution attempt.
	ErrMarketAlreadyResolved = errors.New("market already resolved")

	// ErrMarketNotYetClosed rejects resolution while the market is still
	// open for staking.
	ErrMarketNotYetClosed = errors.New("market not yet closed")

	// ErrInvalidAmount rejects non-positive stakes and stakes below the
	// configured minimum.
	ErrInvalidAmount = errors.New("invalid stake amount")

	// ErrInvalidOutcome rejects outcome values other than 0 (NO) and 1 (YES).
	ErrInvalidOutcome = errors.New("invalid outcome")

	// ErrInvalidCloseTime rejects market creation with a close time that is
	// not strictly in the future.
	ErrInvalidCloseTime = errors.New("close time must be in the future")

	// ErrInsufficientLiquidity is the starvation guard: after the market's
	// first stake, no side accepts further stakes while the opposite pool
	// is still empty.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity on opposite side")

	// ErrNoWinnings is returned when a claim has nothing to pay out: the
	// market is unresolved, the caller holds no stake on the winning side,
	// or the winnings were already claimed.
	ErrNoWinnings = errors.New("no winnings to claim")

	// ErrUnauthorized rejects owner-only actions from other principals.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrLockHeld is returned when a distributed lock is already held.
	ErrLockHeld = errors.New("lock already held")
)
