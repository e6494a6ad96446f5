package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"marketengine/internal/repository"
)

// MarketWorker runs the scheduled sweeps: closing markets whose end time
// passed and refunding ended markets whose resolution deadline expired
// without a decision. Both sweeps reuse the regular CAS-guarded transitions,
// so racing an admin action on the same market is harmless.
type MarketWorker struct {
	Repo       repository.Repository
	Markets    *MarketService
	Settlement *SettlementService
	Batch      int
	Logger     *zap.Logger
}

func (w *MarketWorker) batch() int {
	if w.Batch <= 0 {
		return 100
	}
	return w.Batch
}

// RunEndSweep transitions every active or paused market past its end time
// to ended.
func (w *MarketWorker) RunEndSweep(ctx context.Context) {
	now := time.Now().UTC()
	markets, err := w.Repo.ListMarketsPastEndTime(ctx, now, w.batch())
	if err != nil {
		if w.Logger != nil {
			w.Logger.Warn("end sweep list failed", zap.Error(err))
		}
		return
	}
	for _, m := range markets {
		err := w.Markets.End(ctx, m.ID)
		if err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrMarketBusy) {
			if w.Logger != nil {
				w.Logger.Warn("end sweep transition failed",
					zap.String("market_id", m.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// RunRefundSweep refunds every ended market whose resolution deadline
// passed without a resolution.
func (w *MarketWorker) RunRefundSweep(ctx context.Context) {
	now := time.Now().UTC()
	markets, err := w.Repo.ListMarketsPastResolutionDeadline(ctx, now, w.batch())
	if err != nil {
		if w.Logger != nil {
			w.Logger.Warn("refund sweep list failed", zap.Error(err))
		}
		return
	}
	for _, m := range markets {
		err := w.Settlement.Refund(ctx, m.ID, "system")
		if err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrMarketBusy) {
			if w.Logger != nil {
				w.Logger.Warn("refund sweep failed",
					zap.String("market_id", m.ID),
					zap.Error(err),
				)
			}
		}
	}
}
