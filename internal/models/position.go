package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position statuses. A position is immutable once created except for a
// single status transition performed by settlement (or the refund path).
const (
	PositionStatusOpen    = "open"
	PositionStatusSettled = "settled"
	PositionStatusVoided  = "voided"
)

// Position is one user's claim on one outcome of one market. A user may
// hold several positions on the same outcome; they are never merged.
type Position struct {
	ID       string `gorm:"type:varchar(36);primaryKey"`
	MarketID string `gorm:"type:varchar(36);not null;index"`
	UserID   string `gorm:"type:varchar(100);not null;index"`
	Outcome  string `gorm:"type:varchar(100);not null;index"`

	AmountPaid       decimal.Decimal `gorm:"type:numeric(30,8);not null"`
	SharesAcquired   decimal.Decimal `gorm:"type:numeric(30,8);not null"`
	AvgPricePerShare decimal.Decimal `gorm:"type:numeric(20,8);not null"`

	Status    string     `gorm:"type:varchar(20);not null;default:'open';index"`
	PlacedAt  time.Time  `gorm:"type:timestamptz;not null"`
	SettledAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Position) TableName() string {
	return "positions"
}
