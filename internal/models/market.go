package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Market statuses. Transitions:
// active → {paused ⇄ active} → ended → {resolved | refunded | cancelled}.
const (
	MarketStatusActive    = "active"
	MarketStatusPaused    = "paused"
	MarketStatusEnded     = "ended"
	MarketStatusResolved  = "resolved"
	MarketStatusRefunded  = "refunded"
	MarketStatusCancelled = "cancelled"
)

// TerminalMarketStatuses are the states a market can never leave.
var TerminalMarketStatuses = []string{
	MarketStatusResolved,
	MarketStatusRefunded,
	MarketStatusCancelled,
}

type Market struct {
	ID       string `gorm:"type:varchar(36);primaryKey"`
	Question string `gorm:"type:varchar(500);not null"`
	Category string `gorm:"type:varchar(50);index"`

	// Outcomes is the ordered list of outcome labels as a JSON array.
	Outcomes datatypes.JSON `gorm:"not null"`

	Status             string     `gorm:"type:varchar(20);not null;default:'active';index"`
	EndTime            time.Time  `gorm:"type:timestamptz;not null;index"`
	ResolutionDeadline *time.Time `gorm:"type:timestamptz;index"`

	InitialLiquidity decimal.Decimal `gorm:"type:numeric(30,8);not null"`
	TotalVolume      decimal.Decimal `gorm:"type:numeric(30,8);not null;default:0"`
	TotalTrades      int64           `gorm:"not null;default:0"`

	// Halted is set when a pool invariant violation is detected; a halted
	// market accepts no further trades until manually remediated.
	Halted     bool   `gorm:"not null;default:false"`
	HaltReason string `gorm:"type:varchar(500)"`

	CreatedBy string     `gorm:"type:varchar(100);index"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
	SettledAt *time.Time `gorm:"type:timestamptz"`
}

func (Market) TableName() string {
	return "markets"
}

// OutcomeLabels decodes the stored outcome list.
func (m *Market) OutcomeLabels() ([]string, error) {
	var labels []string
	if err := json.Unmarshal(m.Outcomes, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// SetOutcomeLabels encodes the outcome list for storage.
func (m *Market) SetOutcomeLabels(labels []string) error {
	raw, err := json.Marshal(labels)
	if err != nil {
		return err
	}
	m.Outcomes = datatypes.JSON(raw)
	return nil
}

// HasOutcome reports whether label is one of the market's outcomes.
func (m *Market) HasOutcome(label string) bool {
	labels, err := m.OutcomeLabels()
	if err != nil {
		return false
	}
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the market can never change status again.
func (m *Market) IsTerminal() bool {
	for _, s := range TerminalMarketStatuses {
		if m.Status == s {
			return true
		}
	}
	return false
}
