package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payout is one settlement record per position. For a resolved market the
// sum of net amounts never exceeds the pool minus the house edge; refunds
// and cancellations pay back the amount staked, fee-free.
type Payout struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID   string `gorm:"type:varchar(36);not null;index"`
	PositionID string `gorm:"type:varchar(36);not null;uniqueIndex"`
	UserID     string `gorm:"type:varchar(100);not null;index"`

	GrossAmount decimal.Decimal `gorm:"type:numeric(30,8);not null;default:0"`
	Fee         decimal.Decimal `gorm:"type:numeric(30,8);not null;default:0"`
	NetAmount   decimal.Decimal `gorm:"type:numeric(30,8);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Payout) TableName() string {
	return "payouts"
}
