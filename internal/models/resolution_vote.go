package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolutionVote is one eligible voter's opinion on the winning outcome,
// unique per (market, voter). Votes can be re-cast until the market enters a
// terminal state and are frozen thereafter.
type ResolutionVote struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_vote_market_voter"`
	VoterID  string `gorm:"type:varchar(100);not null;uniqueIndex:idx_vote_market_voter"`

	ChosenOutcome string          `gorm:"type:varchar(100);not null"`
	Confidence    decimal.Decimal `gorm:"type:numeric(5,4);not null;default:1"`
	Weight        decimal.Decimal `gorm:"type:numeric(10,4);not null;default:1"`
	IsFinal       bool            `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ResolutionVote) TableName() string {
	return "resolution_votes"
}
