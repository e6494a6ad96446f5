package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutcomePool is the persisted bonding-curve state for one outcome of one
// market. Reserves are mutated only by the trade path while the market's
// execution lock is held; resolution and settlement read them for reporting.
type OutcomePool struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_pool_market_outcome"`
	Outcome  string `gorm:"type:varchar(100);not null;uniqueIndex:idx_pool_market_outcome"`

	ShareReserve decimal.Decimal `gorm:"type:numeric(30,8);not null"`
	CashReserve  decimal.Decimal `gorm:"type:numeric(30,8);not null"`
	// K is fixed at pool creation as initialLiquidity² and never changes.
	K decimal.Decimal `gorm:"type:numeric(40,8);not null"`

	// Volume is the cumulative cash bet on this outcome.
	Volume decimal.Decimal `gorm:"type:numeric(30,8);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (OutcomePool) TableName() string {
	return "outcome_pools"
}
