package service

import "errors"

// Expected failures are modeled as sentinel errors so callers must handle
// them; panics are reserved for nothing, and pool invariant violations carry
// their own typed error from the amm package.
var (
	// Validation errors: bad input, never retried.
	ErrMarketNotFound    = errors.New("market not found")
	ErrInvalidOutcome    = errors.New("outcome is not part of this market")
	ErrAmountOutOfBounds = errors.New("amount outside configured bet bounds")
	ErrInvalidMarket     = errors.New("invalid market parameters")

	// State conflicts: wrong market status for the requested operation.
	ErrMarketNotActive   = errors.New("market is not active")
	ErrMarketEnded       = errors.New("market has ended")
	ErrMarketHalted      = errors.New("market is halted pending manual remediation")
	ErrInvalidTransition = errors.New("market status does not allow this transition")
	ErrVotingClosed      = errors.New("market no longer accepts resolution votes")

	// Retryable.
	ErrMarketBusy = errors.New("market is busy, retry")

	// Resolution.
	ErrNotEnoughVotes = errors.New("not enough resolution votes")
	ErrResolutionTied = errors.New("resolution vote is tied, manual override required")
)
