package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketengine/internal/amm"
	"marketengine/internal/models"
)

func TestPlaceBetCurveMath(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "30000", "Yes", "No")

	pos, err := env.Trades.PlaceBet(context.Background(), market.ID, "Yes", decimal.NewFromInt(1000), "alice")
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	eq(t, pos.AmountPaid, "1000", "amount paid")
	eq(t, pos.SharesAcquired, "967.74193548", "shares acquired")
	if pos.Status != models.PositionStatusOpen {
		t.Fatalf("status = %s, want open", pos.Status)
	}

	pool := env.pool(t, market.ID, "Yes")
	eq(t, pool.CashReserve, "31000", "cash reserve")
	eq(t, pool.ShareReserve, "29032.25806452", "share reserve")
	eq(t, pool.Volume, "1000", "pool volume")

	// the No pool is an independent curve and must be untouched
	other := env.pool(t, market.ID, "No")
	eq(t, other.CashReserve, "30000", "untouched cash reserve")
	eq(t, other.ShareReserve, "30000", "untouched share reserve")

	updated := env.market(t, market.ID)
	eq(t, updated.TotalVolume, "1000", "market volume")
	if updated.TotalTrades != 1 {
		t.Fatalf("total trades = %d, want 1", updated.TotalTrades)
	}
}

func TestPlaceBetRaisesPrice(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")

	last := decimal.Zero
	for i := 0; i < 5; i++ {
		quote, err := env.Trades.Quote(context.Background(), market.ID, "Yes", decimal.NewFromInt(100))
		if err != nil {
			t.Fatalf("quote %d: %v", i, err)
		}
		if !quote.CurrentPrice.GreaterThanOrEqual(last) {
			t.Fatalf("price fell after buy: %s < %s", quote.CurrentPrice, last)
		}
		last = quote.NewImpliedPrice
		if _, err := env.Trades.PlaceBet(context.Background(), market.ID, "Yes", decimal.NewFromInt(100), "alice"); err != nil {
			t.Fatalf("bet %d: %v", i, err)
		}
	}
}

func TestPlaceBetValidation(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")
	ctx := context.Background()

	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Maybe", decimal.NewFromInt(10), "alice"); !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("unknown outcome: got %v, want ErrInvalidOutcome", err)
	}
	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Yes", decimal.Zero, "alice"); !errors.Is(err, ErrAmountOutOfBounds) {
		t.Fatalf("zero amount: got %v, want ErrAmountOutOfBounds", err)
	}
	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Yes", decimal.NewFromFloat(0.5), "alice"); !errors.Is(err, ErrAmountOutOfBounds) {
		t.Fatalf("below min bet: got %v, want ErrAmountOutOfBounds", err)
	}
	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Yes", decimal.NewFromInt(2000000), "alice"); !errors.Is(err, ErrAmountOutOfBounds) {
		t.Fatalf("above max bet: got %v, want ErrAmountOutOfBounds", err)
	}
	if _, err := env.Trades.PlaceBet(ctx, "no-such-market", "Yes", decimal.NewFromInt(10), "alice"); !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("missing market: got %v, want ErrMarketNotFound", err)
	}
}

func TestPlaceBetAfterEndTime(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	err := env.DB.Model(&models.Market{}).Where("id = ?", market.ID).Update("end_time", past).Error
	if err != nil {
		t.Fatalf("backdate end time: %v", err)
	}

	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Yes", decimal.NewFromInt(10), "alice"); !errors.Is(err, ErrMarketEnded) {
		t.Fatalf("got %v, want ErrMarketEnded", err)
	}

	// rejection must leave no trace
	pool := env.pool(t, market.ID, "Yes")
	eq(t, pool.CashReserve, "1000", "cash reserve after rejection")
	var positions int64
	if err := env.DB.Model(&models.Position{}).Where("market_id = ?", market.ID).Count(&positions).Error; err != nil {
		t.Fatalf("count positions: %v", err)
	}
	if positions != 0 {
		t.Fatalf("positions = %d, want 0", positions)
	}
}

func TestPlaceBetOnPausedMarket(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")
	ctx := context.Background()

	if err := env.Markets.Pause(ctx, market.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Yes", decimal.NewFromInt(10), "alice"); !errors.Is(err, ErrMarketNotActive) {
		t.Fatalf("got %v, want ErrMarketNotActive", err)
	}
	if err := env.Markets.Resume(ctx, market.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Yes", decimal.NewFromInt(10), "alice"); err != nil {
		t.Fatalf("bet after resume: %v", err)
	}
}

func TestConcurrentBetsSerialize(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")

	const bettors = 8
	var wg sync.WaitGroup
	errs := make(chan error, bettors)
	for i := 0; i < bettors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Trades.PlaceBet(context.Background(), market.ID, "Yes", decimal.NewFromInt(100), "alice")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent bet: %v", err)
		}
	}

	// k/(cash) is path independent, so the final reserves must equal one
	// sequential application of all eight bets
	pool := env.pool(t, market.ID, "Yes")
	eq(t, pool.CashReserve, "1800", "final cash reserve")
	eq(t, pool.ShareReserve, "555.55555556", "final share reserve")

	var positions []models.Position
	if err := env.DB.Where("market_id = ?", market.ID).Find(&positions).Error; err != nil {
		t.Fatalf("load positions: %v", err)
	}
	if len(positions) != bettors {
		t.Fatalf("positions = %d, want %d", len(positions), bettors)
	}
	issued := decimal.Zero
	for _, pos := range positions {
		issued = issued.Add(pos.SharesAcquired)
	}
	eq(t, issued, "444.44444444", "total shares issued")
}

func TestCorruptedPoolHaltsMarket(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")
	ctx := context.Background()

	// reserves off the curve: 5000 * 1000 is nowhere near k = 1e6
	err := env.DB.Model(&models.OutcomePool{}).
		Where("market_id = ? AND outcome = ?", market.ID, "Yes").
		Update("share_reserve", decimal.NewFromInt(5000)).Error
	if err != nil {
		t.Fatalf("corrupt pool: %v", err)
	}

	var inv *amm.InvariantViolationError
	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Yes", decimal.NewFromInt(100), "alice"); !errors.As(err, &inv) {
		t.Fatalf("got %v, want InvariantViolationError", err)
	}

	got := env.market(t, market.ID)
	if !got.Halted {
		t.Fatal("market not halted after invariant violation")
	}
	if got.HaltReason == "" {
		t.Fatal("halt reason not recorded")
	}

	// no shares may be issued off the bad reserves
	var positions int64
	if err := env.DB.Model(&models.Position{}).Where("market_id = ?", market.ID).Count(&positions).Error; err != nil {
		t.Fatalf("count positions: %v", err)
	}
	if positions != 0 {
		t.Fatalf("positions = %d, want 0", positions)
	}

	// the halt gate now rejects trades on every outcome of the market
	if _, err := env.Trades.PlaceBet(ctx, market.ID, "No", decimal.NewFromInt(100), "bob"); !errors.Is(err, ErrMarketHalted) {
		t.Fatalf("got %v, want ErrMarketHalted", err)
	}
	if _, err := env.Trades.Quote(ctx, market.ID, "Yes", decimal.NewFromInt(100)); !errors.As(err, &inv) {
		t.Fatalf("quote on drifted pool: got %v, want InvariantViolationError", err)
	}
}

func TestQuoteDoesNotMutate(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")

	quote, err := env.Trades.Quote(context.Background(), market.ID, "Yes", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	eq(t, quote.SharesOut, "90.90909090", "quoted shares")
	eq(t, quote.CurrentPrice, "0.5", "current price")

	pool := env.pool(t, market.ID, "Yes")
	eq(t, pool.CashReserve, "1000", "cash reserve after quote")
	eq(t, pool.ShareReserve, "1000", "share reserve after quote")
}
