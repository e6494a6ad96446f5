package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketengine/internal/models"
	"marketengine/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// session returns the transaction if one is in flight, the base handle
// otherwise, so Tx methods can also serve reads outside a transaction.
func (s *Store) session(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// --- Markets ----------------------------------------------------------------

func (s *Store) CreateMarketTx(ctx context.Context, tx *gorm.DB, m *models.Market, pools []models.OutcomePool) error {
	if s == nil || s.db == nil || m == nil {
		return nil
	}
	db := s.session(ctx, tx)
	if err := db.Create(m).Error; err != nil {
		return err
	}
	if len(pools) == 0 {
		return nil
	}
	return db.Create(&pools).Error
}

func (s *Store) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	return s.GetMarketTx(ctx, nil, id)
}

func (s *Store) GetMarketTx(ctx context.Context, tx *gorm.DB, id string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Market
	err := s.session(ctx, tx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) marketQuery(ctx context.Context, params repository.ListMarketsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Market{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	return query
}

func (s *Store) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.marketQuery(ctx, params), params.OrderBy, params.Asc, "created_at")
	var items []models.Market
	if err := query.Limit(normalizeLimit(params.Limit, 50)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountMarkets(ctx context.Context, params repository.ListMarketsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.marketQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) UpdateMarketStatusTx(ctx context.Context, tx *gorm.DB, id string, from []string, to string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.session(ctx, tx).Model(&models.Market{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) AddMarketVolumeTx(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.session(ctx, tx).Model(&models.Market{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_volume": gorm.Expr("total_volume + ?", amount),
			"total_trades": gorm.Expr("total_trades + 1"),
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (s *Store) HaltMarket(ctx context.Context, id, reason string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"halted":      true,
			"halt_reason": reason,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (s *Store) SetMarketSettledTx(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.session(ctx, tx).Model(&models.Market{}).
		Where("id = ?", id).
		Update("settled_at", at).Error
}

func (s *Store) ListMarketsPastEndTime(ctx context.Context, now time.Time, limit int) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Market
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{models.MarketStatusActive, models.MarketStatusPaused}).
		Where("end_time <= ?", now).
		Order("end_time asc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListMarketsPastResolutionDeadline(ctx context.Context, now time.Time, limit int) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Market
	err := s.db.WithContext(ctx).
		Where("status = ?", models.MarketStatusEnded).
		Where("resolution_deadline IS NOT NULL").
		Where("resolution_deadline <= ?", now).
		Order("resolution_deadline asc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Outcome pools ----------------------------------------------------------

func (s *Store) ListPoolsByMarket(ctx context.Context, marketID string) ([]models.OutcomePool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.OutcomePool
	err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetPoolTx(ctx context.Context, tx *gorm.DB, marketID, outcome string) (*models.OutcomePool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.OutcomePool
	err := s.session(ctx, tx).
		Where("market_id = ? AND outcome = ?", marketID, outcome).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdatePoolReservesTx(ctx context.Context, tx *gorm.DB, poolID uint64, share, cash, addVolume decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.session(ctx, tx).Model(&models.OutcomePool{}).
		Where("id = ?", poolID).
		Updates(map[string]any{
			"share_reserve": share,
			"cash_reserve":  cash,
			"volume":        gorm.Expr("volume + ?", addVolume),
			"updated_at":    time.Now().UTC(),
		}).Error
}

// --- Positions --------------------------------------------------------------

func (s *Store) CreatePositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.session(ctx, tx).Create(item).Error
}

func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Position{})
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Outcome != nil && strings.TrimSpace(*params.Outcome) != "" {
		query = query.Where("outcome = ?", strings.TrimSpace(*params.Outcome))
	}
	var items []models.Position
	err := query.Order("placed_at asc").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPositionsByMarketTx(ctx context.Context, tx *gorm.DB, marketID string) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	err := s.session(ctx, tx).
		Where("market_id = ?", marketID).
		Order("placed_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SettlePositionTx(ctx context.Context, tx *gorm.DB, positionID, fromStatus, toStatus string, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.session(ctx, tx).Model(&models.Position{}).
		Where("id = ?", positionID).
		Where("status = ?", fromStatus).
		Updates(map[string]any{
			"status":     toStatus,
			"settled_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// --- Resolution votes -------------------------------------------------------

func (s *Store) UpsertVote(ctx context.Context, item *models.ResolutionVote) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "market_id"}, {Name: "voter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"chosen_outcome",
			"confidence",
			"weight",
			"is_final",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListVotes(ctx context.Context, marketID string) ([]models.ResolutionVote, error) {
	return s.ListVotesTx(ctx, nil, marketID)
}

func (s *Store) ListVotesTx(ctx context.Context, tx *gorm.DB, marketID string) ([]models.ResolutionVote, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ResolutionVote
	err := s.session(ctx, tx).
		Where("market_id = ?", marketID).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Resolutions ------------------------------------------------------------

func (s *Store) CreateResolutionTx(ctx context.Context, tx *gorm.DB, item *models.Resolution) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.session(ctx, tx).Create(item).Error
}

func (s *Store) GetResolution(ctx context.Context, marketID string) (*models.Resolution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Resolution
	err := s.db.WithContext(ctx).Where("market_id = ?", marketID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Payouts ----------------------------------------------------------------

func (s *Store) CreatePayoutsTx(ctx context.Context, tx *gorm.DB, items []models.Payout) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.session(ctx, tx).Create(&items).Error
}

func (s *Store) ListPayoutsByMarket(ctx context.Context, marketID string) ([]models.Payout, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Payout
	err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	if col == "" {
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// Compile-time interface check.
var _ repository.Repository = (*Store)(nil)
