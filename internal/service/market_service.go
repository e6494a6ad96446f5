package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"marketengine/internal/amm"
	"marketengine/internal/config"
	"marketengine/internal/events"
	"marketengine/internal/locks"
	"marketengine/internal/models"
	"marketengine/internal/repository"
)

const (
	maxQuestionLen = 500
	minOutcomes    = 2
	maxOutcomes    = 10
)

// MarketService creates markets and drives the non-settling lifecycle
// transitions (pause, resume, end). Settling transitions live in
// SettlementService; resolved is reached only through ResolutionService.
type MarketService struct {
	Repo   repository.Repository
	Locks  *locks.Manager
	Hub    *events.Hub
	Config config.EngineConfig
	Logger *zap.Logger
}

type CreateMarketParams struct {
	Question           string
	Outcomes           []string
	Category           string
	EndTime            time.Time
	ResolutionDeadline *time.Time
	InitialLiquidity   decimal.Decimal // zero means the configured default
	CreatedBy          string
}

// Create validates the request and atomically creates the market together
// with one seeded outcome pool per outcome.
func (s *MarketService) Create(ctx context.Context, params CreateMarketParams) (*models.Market, error) {
	question := strings.TrimSpace(params.Question)
	if question == "" || len(question) > maxQuestionLen {
		return nil, fmt.Errorf("%w: question must be 1-%d characters", ErrInvalidMarket, maxQuestionLen)
	}

	outcomes := make([]string, 0, len(params.Outcomes))
	seen := make(map[string]struct{}, len(params.Outcomes))
	for _, raw := range params.Outcomes {
		label := strings.TrimSpace(raw)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("%w: duplicate outcome %q", ErrInvalidMarket, label)
		}
		seen[label] = struct{}{}
		outcomes = append(outcomes, label)
	}
	if len(outcomes) < minOutcomes || len(outcomes) > maxOutcomes {
		return nil, fmt.Errorf("%w: need %d-%d unique outcomes", ErrInvalidMarket, minOutcomes, maxOutcomes)
	}

	now := time.Now().UTC()
	if !params.EndTime.After(now.Add(s.Config.MinMarketDuration)) {
		return nil, fmt.Errorf("%w: end time must be at least %s away", ErrInvalidMarket, s.Config.MinMarketDuration)
	}
	if s.Config.MaxMarketDuration > 0 && params.EndTime.After(now.Add(s.Config.MaxMarketDuration)) {
		return nil, fmt.Errorf("%w: end time exceeds maximum duration %s", ErrInvalidMarket, s.Config.MaxMarketDuration)
	}
	if params.ResolutionDeadline != nil && !params.ResolutionDeadline.After(params.EndTime) {
		return nil, fmt.Errorf("%w: resolution deadline must be after end time", ErrInvalidMarket)
	}

	liquidity := params.InitialLiquidity
	if liquidity.IsZero() {
		liquidity = decimal.NewFromFloat(s.Config.DefaultInitialLiquidity)
	}
	minLiq := decimal.NewFromFloat(s.Config.MinInitialLiquidity)
	maxLiq := decimal.NewFromFloat(s.Config.MaxInitialLiquidity)
	if liquidity.LessThan(minLiq) || liquidity.GreaterThan(maxLiq) {
		return nil, fmt.Errorf("%w: initial liquidity must be in [%s, %s]", ErrInvalidMarket, minLiq, maxLiq)
	}

	market := &models.Market{
		ID:                 uuid.NewString(),
		Question:           question,
		Category:           strings.TrimSpace(params.Category),
		Status:             models.MarketStatusActive,
		EndTime:            params.EndTime.UTC(),
		ResolutionDeadline: params.ResolutionDeadline,
		InitialLiquidity:   liquidity,
		TotalVolume:        decimal.Zero,
		CreatedBy:          params.CreatedBy,
	}
	if err := market.SetOutcomeLabels(outcomes); err != nil {
		return nil, err
	}

	pools := make([]models.OutcomePool, 0, len(outcomes))
	for _, outcome := range outcomes {
		pool, err := amm.NewPool(outcome, liquidity)
		if err != nil {
			return nil, err
		}
		pools = append(pools, models.OutcomePool{
			MarketID:     market.ID,
			Outcome:      outcome,
			ShareReserve: pool.ShareReserve,
			CashReserve:  pool.CashReserve,
			K:            pool.K,
			Volume:       decimal.Zero,
		})
	}

	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		return s.Repo.CreateMarketTx(ctx, tx, market, pools)
	})
	if err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Info("market created",
			zap.String("market_id", market.ID),
			zap.Int("outcomes", len(outcomes)),
			zap.String("initial_liquidity", liquidity.String()),
		)
	}
	s.Hub.Publish(events.Event{
		Type:     events.TypeMarketCreated,
		MarketID: market.ID,
		Data:     map[string]any{"question": question, "end_time": market.EndTime},
	})
	return market, nil
}

// OutcomeState is the per-outcome slice of a market state view.
type OutcomeState struct {
	Outcome      string          `json:"outcome"`
	ShareReserve decimal.Decimal `json:"share_reserve"`
	CashReserve  decimal.Decimal `json:"cash_reserve"`
	ImpliedPrice decimal.Decimal `json:"implied_price"`
	// Probability is the implied price normalized across outcomes. It is
	// display data only; the pools themselves are independent curves and
	// pricing never feeds off this number.
	Probability decimal.Decimal `json:"probability"`
	Volume      decimal.Decimal `json:"volume"`
}

type MarketState struct {
	Market   *models.Market `json:"market"`
	Outcomes []OutcomeState `json:"outcomes"`
	Labels   []string       `json:"labels"`
}

// GetState returns the market with per-outcome implied prices and volumes.
func (s *MarketService) GetState(ctx context.Context, id string) (*MarketState, error) {
	market, err := s.Repo.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	pools, err := s.Repo.ListPoolsByMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	labels, err := market.OutcomeLabels()
	if err != nil {
		return nil, err
	}

	states := make([]OutcomeState, 0, len(pools))
	priceSum := decimal.Zero
	for _, p := range pools {
		price := amm.Restore(p.Outcome, p.ShareReserve, p.CashReserve, p.K).ImpliedPrice()
		priceSum = priceSum.Add(price)
		states = append(states, OutcomeState{
			Outcome:      p.Outcome,
			ShareReserve: p.ShareReserve,
			CashReserve:  p.CashReserve,
			ImpliedPrice: price,
			Volume:       p.Volume,
		})
	}
	if priceSum.Sign() > 0 {
		for i := range states {
			states[i].Probability = states[i].ImpliedPrice.DivRound(priceSum, amm.Scale)
		}
	}
	return &MarketState{Market: market, Outcomes: states, Labels: labels}, nil
}

func (s *MarketService) List(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, int64, error) {
	items, err := s.Repo.ListMarkets(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountMarkets(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Pause suspends trading on an active market.
func (s *MarketService) Pause(ctx context.Context, id string) error {
	return s.transition(ctx, id, []string{models.MarketStatusActive}, models.MarketStatusPaused, "")
}

// Resume reopens a paused market for trading.
func (s *MarketService) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, []string{models.MarketStatusPaused}, models.MarketStatusActive, "")
}

// End closes a market to new trades, either because endTime passed or by
// explicit admin close.
func (s *MarketService) End(ctx context.Context, id string) error {
	return s.transition(ctx, id,
		[]string{models.MarketStatusActive, models.MarketStatusPaused},
		models.MarketStatusEnded,
		events.TypeMarketEnded,
	)
}

// transition performs a CAS-guarded status change under the market's lock.
func (s *MarketService) transition(ctx context.Context, id string, from []string, to, eventType string) error {
	release, err := s.Locks.Acquire(ctx, id, s.Config.LockTimeout)
	if err != nil {
		if errors.Is(err, locks.ErrTimeout) {
			return ErrMarketBusy
		}
		return err
	}
	defer release()

	market, err := s.Repo.GetMarket(ctx, id)
	if err != nil {
		return err
	}
	if market == nil {
		return ErrMarketNotFound
	}
	ok, err := s.Repo.UpdateMarketStatusTx(ctx, nil, id, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	if s.Logger != nil {
		s.Logger.Info("market status changed",
			zap.String("market_id", id),
			zap.String("from", market.Status),
			zap.String("to", to),
		)
	}
	if eventType != "" {
		s.Hub.Publish(events.Event{Type: eventType, MarketID: id})
	}
	return nil
}
