package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"marketengine/internal/config"
	"marketengine/internal/events"
	"marketengine/internal/locks"
	"marketengine/internal/models"
	"marketengine/internal/repository"
)

var (
	bpsDenominator = decimal.NewFromInt(10000)
	payoutScale    = int32(8)
)

// SettlementService computes and records payouts exactly once per market.
// Settlement is idempotent: a position is paid only while still open, and
// the status transition happens in the same transaction as the payout row,
// so a retried settlement neither double-pays nor half-pays.
type SettlementService struct {
	Repo   repository.Repository
	Locks  *locks.Manager
	Hub    *events.Hub
	Config config.EngineConfig
	Logger *zap.Logger
}

// settleResolvedTx pays winning positions at par (one unit per share) minus
// the house edge and marks losing positions settled with a zero payout. It
// must run inside the resolution transaction with the market lock held.
//
// Winning shares can in principle exceed the cash collected when a
// long-shot outcome wins big; gross payouts are then scaled pro-rata by
// totalPool/Σshares so settlement never creates value.
func (s *SettlementService) settleResolvedTx(ctx context.Context, tx *gorm.DB, market *models.Market, res *models.Resolution, positions []models.Position) ([]models.Payout, error) {
	now := time.Now().UTC()

	totalWinningShares := decimal.Zero
	for _, pos := range positions {
		if pos.Status == models.PositionStatusOpen && pos.Outcome == res.WinningOutcome {
			totalWinningShares = totalWinningShares.Add(pos.SharesAcquired)
		}
	}
	scale := decimal.NewFromInt(1)
	if totalWinningShares.GreaterThan(res.TotalPool) && totalWinningShares.Sign() > 0 {
		scale = res.TotalPool.DivRound(totalWinningShares, 16)
	}
	houseEdge := decimal.NewFromInt(res.HouseEdgeBps)

	payouts := make([]models.Payout, 0, len(positions))
	for _, pos := range positions {
		if pos.Status != models.PositionStatusOpen {
			continue
		}
		moved, err := s.Repo.SettlePositionTx(ctx, tx, pos.ID, models.PositionStatusOpen, models.PositionStatusSettled, now)
		if err != nil {
			return nil, err
		}
		if !moved {
			continue
		}

		gross := decimal.Zero
		fee := decimal.Zero
		if pos.Outcome == res.WinningOutcome {
			gross = pos.SharesAcquired.Mul(scale).RoundFloor(payoutScale)
			if res.HouseEdgeBps > 0 {
				fee = gross.Mul(houseEdge).Div(bpsDenominator).RoundCeil(payoutScale)
			}
		}
		payouts = append(payouts, models.Payout{
			MarketID:    market.ID,
			PositionID:  pos.ID,
			UserID:      pos.UserID,
			GrossAmount: gross,
			Fee:         fee,
			NetAmount:   gross.Sub(fee),
		})
	}
	if err := s.Repo.CreatePayoutsTx(ctx, tx, payouts); err != nil {
		return nil, err
	}
	return payouts, nil
}

// Refund voids every position of an ended market, paying back exactly what
// was staked, fee-free. Used when no resolution arrives before the
// resolution deadline or when the market is deemed invalid.
func (s *SettlementService) Refund(ctx context.Context, marketID, actor string) error {
	return s.void(ctx, marketID, actor,
		[]string{models.MarketStatusEnded},
		models.MarketStatusRefunded,
	)
}

// Cancel administratively aborts a market before resolution; for settlement
// purposes it behaves exactly like a refund.
func (s *SettlementService) Cancel(ctx context.Context, marketID, actor string) error {
	return s.void(ctx, marketID, actor,
		[]string{models.MarketStatusActive, models.MarketStatusPaused, models.MarketStatusEnded},
		models.MarketStatusCancelled,
	)
}

func (s *SettlementService) void(ctx context.Context, marketID, actor string, from []string, to string) error {
	release, err := s.Locks.Acquire(ctx, marketID, s.Config.LockTimeout)
	if err != nil {
		if errors.Is(err, locks.ErrTimeout) {
			return ErrMarketBusy
		}
		return err
	}
	defer release()

	now := time.Now().UTC()
	var payouts []models.Payout
	var userIDs []string

	txErr := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		market, err := s.Repo.GetMarketTx(ctx, tx, marketID)
		if err != nil {
			return err
		}
		if market == nil {
			return ErrMarketNotFound
		}
		ok, err := s.Repo.UpdateMarketStatusTx(ctx, tx, marketID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}

		positions, err := s.Repo.ListPositionsByMarketTx(ctx, tx, marketID)
		if err != nil {
			return err
		}

		totalPool := decimal.Zero
		for _, pos := range positions {
			totalPool = totalPool.Add(pos.AmountPaid)
		}
		resolution := &models.Resolution{
			MarketID:     marketID,
			Method:       models.ResolutionMethodAutoRefund,
			ResolvedBy:   actor,
			TotalPool:    totalPool,
			HouseEdgeBps: 0,
		}
		if err := s.Repo.CreateResolutionTx(ctx, tx, resolution); err != nil {
			return err
		}

		payouts = payouts[:0]
		for _, pos := range positions {
			if pos.Status != models.PositionStatusOpen {
				continue
			}
			moved, err := s.Repo.SettlePositionTx(ctx, tx, pos.ID, models.PositionStatusOpen, models.PositionStatusVoided, now)
			if err != nil {
				return err
			}
			if !moved {
				continue
			}
			payouts = append(payouts, models.Payout{
				MarketID:    marketID,
				PositionID:  pos.ID,
				UserID:      pos.UserID,
				GrossAmount: pos.AmountPaid,
				Fee:         decimal.Zero,
				NetAmount:   pos.AmountPaid,
			})
			userIDs = append(userIDs, pos.UserID)
		}
		if err := s.Repo.CreatePayoutsTx(ctx, tx, payouts); err != nil {
			return err
		}
		return s.Repo.SetMarketSettledTx(ctx, tx, marketID, now)
	})
	if txErr != nil {
		return txErr
	}

	if s.Logger != nil {
		s.Logger.Info("market voided",
			zap.String("market_id", marketID),
			zap.String("status", to),
			zap.Int("refunded_positions", len(payouts)),
		)
	}
	s.Hub.Publish(events.Event{
		Type:     events.TypeMarketRefunded,
		MarketID: marketID,
		UserIDs:  userIDs,
		Data:     map[string]any{"status": to},
	})
	if len(payouts) > 0 {
		s.Hub.Publish(events.Event{
			Type:     events.TypePayoutReady,
			MarketID: marketID,
			UserIDs:  userIDs,
			Data:     map[string]any{"payouts": len(payouts)},
		})
	}
	return nil
}

// ListPayouts returns the payout records for a market.
func (s *SettlementService) ListPayouts(ctx context.Context, marketID string) ([]models.Payout, error) {
	return s.Repo.ListPayoutsByMarket(ctx, marketID)
}
