package service

import (
	"context"
	"errors"
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

// TradeService validates and applies buy orders against one market at a
// time. All mutations for a market happen under its execution lock, so
// trades on the same market apply in lock-acquisition order while different
// markets proceed in parallel.
type TradeService struct {
	Repo   repository.Repository
	Locks  *locks.Manager
	Hub    *events.Hub
	Config config.EngineConfig
	Logger *zap.Logger
}

// QuoteResult is a read-only price quote; nothing is applied.
type QuoteResult struct {
	Outcome         string          `json:"outcome"`
	CashIn          decimal.Decimal `json:"cash_in"`
	SharesOut       decimal.Decimal `json:"shares_out"`
	AvgPrice        decimal.Decimal `json:"avg_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	NewImpliedPrice decimal.Decimal `json:"new_implied_price"`
}

// Quote prices a hypothetical buy without acquiring the market lock; it
// reads a snapshot of the pool and runs the pure curve math.
func (s *TradeService) Quote(ctx context.Context, marketID, outcome string, amount decimal.Decimal) (*QuoteResult, error) {
	if err := s.checkBounds(amount); err != nil {
		return nil, err
	}
	market, err := s.Repo.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	if !market.HasOutcome(outcome) {
		return nil, ErrInvalidOutcome
	}
	row, err := s.Repo.GetPoolTx(ctx, nil, marketID, outcome)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrInvalidOutcome
	}
	pool := amm.Restore(row.Outcome, row.ShareReserve, row.CashReserve, row.K)
	if err := pool.Check(); err != nil {
		return nil, err
	}
	quote, err := pool.QuoteBuy(amount)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{
		Outcome:         outcome,
		CashIn:          amount,
		SharesOut:       quote.SharesOut,
		AvgPrice:        quote.AvgPrice,
		CurrentPrice:    pool.ImpliedPrice(),
		NewImpliedPrice: quote.NewImpliedPrice,
	}, nil
}

// PlaceBet executes a buy of amount on outcome for userID. On success the
// created position is returned; the trade event is emitted best-effort after
// commit and never rolls back the trade.
func (s *TradeService) PlaceBet(ctx context.Context, marketID, outcome string, amount decimal.Decimal, userID string) (*models.Position, error) {
	if err := s.checkBounds(amount); err != nil {
		return nil, err
	}

	release, err := s.Locks.Acquire(ctx, marketID, s.Config.LockTimeout)
	if err != nil {
		if errors.Is(err, locks.ErrTimeout) {
			return nil, ErrMarketBusy
		}
		return nil, err
	}
	defer release()

	now := time.Now().UTC()
	var position *models.Position
	var quote amm.Quote

	txErr := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		market, err := s.Repo.GetMarketTx(ctx, tx, marketID)
		if err != nil {
			return err
		}
		if market == nil {
			return ErrMarketNotFound
		}
		if market.Halted {
			return ErrMarketHalted
		}
		if market.Status != models.MarketStatusActive {
			return ErrMarketNotActive
		}
		if !now.Before(market.EndTime) {
			return ErrMarketEnded
		}
		if !market.HasOutcome(outcome) {
			return ErrInvalidOutcome
		}

		row, err := s.Repo.GetPoolTx(ctx, tx, marketID, outcome)
		if err != nil {
			return err
		}
		if row == nil {
			return ErrInvalidOutcome
		}

		// Reserves loaded from storage are only trusted after re-validating
		// the curve; drifted rows must halt the market, never be snapped
		// back onto k by the next trade.
		pool := amm.Restore(row.Outcome, row.ShareReserve, row.CashReserve, row.K)
		if err := pool.Check(); err != nil {
			return err
		}
		quote, err = pool.ApplyBuy(amount)
		if err != nil {
			return err
		}

		if err := s.Repo.UpdatePoolReservesTx(ctx, tx, row.ID, pool.ShareReserve, pool.CashReserve, amount); err != nil {
			return err
		}
		if err := s.Repo.AddMarketVolumeTx(ctx, tx, marketID, amount); err != nil {
			return err
		}

		position = &models.Position{
			ID:               uuid.NewString(),
			MarketID:         marketID,
			UserID:           userID,
			Outcome:          outcome,
			AmountPaid:       amount,
			SharesAcquired:   quote.SharesOut,
			AvgPricePerShare: quote.AvgPrice,
			Status:           models.PositionStatusOpen,
			PlacedAt:         now,
		}
		return s.Repo.CreatePositionTx(ctx, tx, position)
	})
	if txErr != nil {
		var inv *amm.InvariantViolationError
		if errors.As(txErr, &inv) {
			// Never silently corrected: the trade is already rolled back,
			// flag the market so no further trades run until an operator
			// intervenes.
			if haltErr := s.Repo.HaltMarket(ctx, marketID, inv.Error()); haltErr != nil && s.Logger != nil {
				s.Logger.Error("failed to halt market after invariant violation",
					zap.String("market_id", marketID),
					zap.Error(haltErr),
				)
			}
			if s.Logger != nil {
				s.Logger.Error("pool invariant violated, market halted",
					zap.String("market_id", marketID),
					zap.String("outcome", outcome),
					zap.Error(inv),
				)
			}
		}
		return nil, txErr
	}

	if s.Logger != nil {
		s.Logger.Info("bet placed",
			zap.String("market_id", marketID),
			zap.String("user_id", userID),
			zap.String("outcome", outcome),
			zap.String("amount", amount.String()),
			zap.String("shares", quote.SharesOut.String()),
		)
	}
	s.Hub.Publish(events.Event{
		Type:     events.TypeTradeExecuted,
		MarketID: marketID,
		UserIDs:  []string{userID},
		Data: map[string]any{
			"position_id":   position.ID,
			"outcome":       outcome,
			"amount":        amount.String(),
			"shares":        quote.SharesOut.String(),
			"implied_price": quote.NewImpliedPrice.String(),
		},
	})
	return position, nil
}

// ListPositions returns positions filtered by market, user, outcome or
// status.
func (s *TradeService) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	return s.Repo.ListPositions(ctx, params)
}

func (s *TradeService) checkBounds(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrAmountOutOfBounds
	}
	minBet := decimal.NewFromFloat(s.Config.MinBet)
	maxBet := decimal.NewFromFloat(s.Config.MaxBet)
	if amount.LessThan(minBet) || (maxBet.Sign() > 0 && amount.GreaterThan(maxBet)) {
		return ErrAmountOutOfBounds
	}
	return nil
}
