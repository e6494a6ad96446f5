// Package amm implements the constant-product bonding curve used to price
// outcome shares.
//
// Each outcome of a market owns an independent pool with two reserves,
// shareReserve and cashReserve, seeded equal at creation so that
// k = initialLiquidity² stays fixed for the life of the pool. A buy moves
// cash into the pool and takes shares out along the curve
// shareReserve × cashReserve = k, which means the pool can always quote a
// price: reserves approach zero but never reach it for finite input.
//
// All arithmetic is decimal fixed-point with eight fractional digits.
// Divisions that produce a new share reserve round toward the pool
// (ceiling), so rounding can only ever favor the pool and the reserve
// product never drops below k.
package amm

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by share and price
// quantities.
const Scale = 8

// roundingUnit is one unit in the last carried digit, the tolerance allowed
// between the reserve product and k after a mutation.
var roundingUnit = decimal.New(1, -Scale)

// ErrInvalidAmount is returned when a quote or buy is requested for a
// non-positive cash amount, or an amount too small to purchase any shares at
// the carried precision.
var ErrInvalidAmount = fmt.Errorf("amm: cash amount must be positive")

// InvariantViolationError reports that a pool's reserve product drifted
// beyond one rounding unit from k. It is a programming error, not a user
// error: the owning market must stop trading and be flagged for manual
// remediation.
type InvariantViolationError struct {
	Outcome      string
	ShareReserve decimal.Decimal
	CashReserve  decimal.Decimal
	K            decimal.Decimal
	Drift        decimal.Decimal
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("amm: reserve invariant violated for outcome %q: share=%s cash=%s k=%s drift=%s",
		e.Outcome, e.ShareReserve.String(), e.CashReserve.String(), e.K.String(), e.Drift.String())
}

// Pool is the bonding-curve state for one outcome. The zero value is not
// usable; construct with NewPool or load persisted reserves with Restore.
type Pool struct {
	Outcome      string
	ShareReserve decimal.Decimal
	CashReserve  decimal.Decimal
	K            decimal.Decimal
}

// NewPool seeds both reserves with initialLiquidity, fixing k at
// initialLiquidity². The implied price therefore starts at exactly 0.5.
func NewPool(outcome string, initialLiquidity decimal.Decimal) (*Pool, error) {
	if initialLiquidity.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return &Pool{
		Outcome:      outcome,
		ShareReserve: initialLiquidity,
		CashReserve:  initialLiquidity,
		K:            initialLiquidity.Mul(initialLiquidity),
	}, nil
}

// Restore rebuilds a pool from persisted reserves and k.
func Restore(outcome string, shareReserve, cashReserve, k decimal.Decimal) *Pool {
	return &Pool{Outcome: outcome, ShareReserve: shareReserve, CashReserve: cashReserve, K: k}
}

// Quote is the result of pricing a buy without applying it.
type Quote struct {
	CashIn          decimal.Decimal
	SharesOut       decimal.Decimal
	NewShareReserve decimal.Decimal
	NewCashReserve  decimal.Decimal
	NewImpliedPrice decimal.Decimal
	AvgPrice        decimal.Decimal
}

// QuoteBuy prices a buy of cashIn against the current reserves without
// mutating them.
//
// newCashReserve = cashReserve + cashIn
// newShareReserve = k / newCashReserve, rounded up (toward the pool)
// sharesOut = shareReserve − newShareReserve
func (p *Pool) QuoteBuy(cashIn decimal.Decimal) (Quote, error) {
	if cashIn.Sign() <= 0 {
		return Quote{}, ErrInvalidAmount
	}
	newCash := p.CashReserve.Add(cashIn)
	newShare := p.K.Div(newCash).RoundCeil(Scale)
	sharesOut := p.ShareReserve.Sub(newShare)
	if sharesOut.Sign() <= 0 {
		// Too small to move the curve at the carried precision.
		return Quote{}, ErrInvalidAmount
	}
	return Quote{
		CashIn:          cashIn,
		SharesOut:       sharesOut,
		NewShareReserve: newShare,
		NewCashReserve:  newCash,
		NewImpliedPrice: impliedPrice(newCash, newShare),
		AvgPrice:        cashIn.DivRound(sharesOut, Scale),
	}, nil
}

// ApplyBuy mutates the reserves to the quoted values and returns the quote.
// The caller must hold the owning market's execution lock.
//
// After the mutation the reserve product is re-validated against k; a drift
// beyond one rounding unit (scaled by the new cash reserve) returns an
// InvariantViolationError and leaves the pool untouched.
func (p *Pool) ApplyBuy(cashIn decimal.Decimal) (Quote, error) {
	q, err := p.QuoteBuy(cashIn)
	if err != nil {
		return Quote{}, err
	}
	if err := checkInvariant(p.Outcome, q.NewShareReserve, q.NewCashReserve, p.K); err != nil {
		return Quote{}, err
	}
	p.ShareReserve = q.NewShareReserve
	p.CashReserve = q.NewCashReserve
	return q, nil
}

// ImpliedPrice returns cashReserve / (cashReserve + shareReserve), always in
// (0,1). Buying an outcome strictly increases its implied price.
func (p *Pool) ImpliedPrice() decimal.Decimal {
	return impliedPrice(p.CashReserve, p.ShareReserve)
}

// Check re-validates the reserve invariant for a pool loaded from storage.
func (p *Pool) Check() error {
	return checkInvariant(p.Outcome, p.ShareReserve, p.CashReserve, p.K)
}

func impliedPrice(cash, share decimal.Decimal) decimal.Decimal {
	return cash.DivRound(cash.Add(share), Scale)
}

// checkInvariant verifies share·cash stays within one rounding unit of k.
// The share reserve is rounded at Scale digits, so the product may exceed k
// by at most cash · 10^-Scale.
func checkInvariant(outcome string, share, cash, k decimal.Decimal) error {
	drift := share.Mul(cash).Sub(k).Abs()
	tolerance := cash.Mul(roundingUnit)
	if tolerance.LessThan(roundingUnit) {
		tolerance = roundingUnit
	}
	if drift.GreaterThan(tolerance) {
		return &InvariantViolationError{
			Outcome:      outcome,
			ShareReserve: share,
			CashReserve:  cash,
			K:            k,
			Drift:        drift,
		}
	}
	return nil
}
