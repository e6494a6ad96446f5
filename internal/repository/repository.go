package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"marketengine/internal/models"
)

type ListMarketsParams struct {
	Limit    int
	Offset   int
	Status   *string
	Category *string
	OrderBy  string
	Asc      *bool
}

type ListPositionsParams struct {
	Limit    int
	Offset   int
	MarketID *string
	UserID   *string
	Status   *string
	Outcome  *string
}

// Repository is the storage contract consumed by the engine services.
// Methods with a Tx suffix run inside a transaction opened with InTx, which
// provides the atomic scope for a single market's lock region.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Markets.
	CreateMarketTx(ctx context.Context, tx *gorm.DB, m *models.Market, pools []models.OutcomePool) error
	GetMarket(ctx context.Context, id string) (*models.Market, error)
	GetMarketTx(ctx context.Context, tx *gorm.DB, id string) (*models.Market, error)
	ListMarkets(ctx context.Context, params ListMarketsParams) ([]models.Market, error)
	CountMarkets(ctx context.Context, params ListMarketsParams) (int64, error)
	// UpdateMarketStatusTx performs a compare-and-set on status: the update
	// applies only if the current status is one of from, and the return value
	// reports whether a row changed.
	UpdateMarketStatusTx(ctx context.Context, tx *gorm.DB, id string, from []string, to string) (bool, error)
	AddMarketVolumeTx(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal) error
	HaltMarket(ctx context.Context, id, reason string) error
	SetMarketSettledTx(ctx context.Context, tx *gorm.DB, id string, at time.Time) error
	ListMarketsPastEndTime(ctx context.Context, now time.Time, limit int) ([]models.Market, error)
	ListMarketsPastResolutionDeadline(ctx context.Context, now time.Time, limit int) ([]models.Market, error)

	// Outcome pools.
	ListPoolsByMarket(ctx context.Context, marketID string) ([]models.OutcomePool, error)
	GetPoolTx(ctx context.Context, tx *gorm.DB, marketID, outcome string) (*models.OutcomePool, error)
	UpdatePoolReservesTx(ctx context.Context, tx *gorm.DB, poolID uint64, share, cash, addVolume decimal.Decimal) error

	// Positions.
	CreatePositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
	ListPositionsByMarketTx(ctx context.Context, tx *gorm.DB, marketID string) ([]models.Position, error)
	// SettlePositionTx transitions a position's status only if it still has
	// fromStatus; the return value reports whether the transition happened.
	SettlePositionTx(ctx context.Context, tx *gorm.DB, positionID, fromStatus, toStatus string, at time.Time) (bool, error)

	// Resolution votes.
	UpsertVote(ctx context.Context, item *models.ResolutionVote) error
	ListVotes(ctx context.Context, marketID string) ([]models.ResolutionVote, error)
	ListVotesTx(ctx context.Context, tx *gorm.DB, marketID string) ([]models.ResolutionVote, error)

	// Resolutions.
	CreateResolutionTx(ctx context.Context, tx *gorm.DB, item *models.Resolution) error
	GetResolution(ctx context.Context, marketID string) (*models.Resolution, error)

	// Payouts.
	CreatePayoutsTx(ctx context.Context, tx *gorm.DB, items []models.Payout) error
	ListPayoutsByMarket(ctx context.Context, marketID string) ([]models.Payout, error)
}
