package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Resolution methods.
const (
	ResolutionMethodAdminDecision = "admin_decision"
	ResolutionMethodVoteConsensus = "vote_consensus"
	ResolutionMethodOracle        = "oracle"
	ResolutionMethodAutoRefund    = "auto_refund"
)

// Resolution is the recorded outcome decision for a market, created exactly
// once and immutable thereafter. Disputes reopen via a separately governed
// override path, not by mutating this row.
type Resolution struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID string `gorm:"type:varchar(36);not null;uniqueIndex"`

	WinningOutcome string `gorm:"type:varchar(100);not null"`
	Method         string `gorm:"type:varchar(30);not null"`
	ResolvedBy     string `gorm:"type:varchar(100)"`

	TotalPool         decimal.Decimal `gorm:"type:numeric(30,8);not null;default:0"`
	TotalWinningStake decimal.Decimal `gorm:"type:numeric(30,8);not null;default:0"`
	TotalLosingStake  decimal.Decimal `gorm:"type:numeric(30,8);not null;default:0"`
	HouseEdgeBps      int64           `gorm:"not null;default:0"`

	DisputeDeadline *time.Time `gorm:"type:timestamptz"`
	CreatedAt       time.Time  `gorm:"type:timestamptz;autoCreateTime"`
}

func (Resolution) TableName() string {
	return "resolutions"
}
