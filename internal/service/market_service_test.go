package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketengine/internal/models"
	"marketengine/internal/repository"
)

func TestCreateMarketSeedsPools(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "30000", "Yes", "No", "Draw")

	if market.Status != models.MarketStatusActive {
		t.Fatalf("status = %s, want active", market.Status)
	}
	labels, err := market.OutcomeLabels()
	if err != nil {
		t.Fatalf("outcome labels: %v", err)
	}
	if len(labels) != 3 {
		t.Fatalf("labels = %v, want 3 outcomes", labels)
	}

	for _, outcome := range labels {
		pool := env.pool(t, market.ID, outcome)
		eq(t, pool.ShareReserve, "30000", outcome+" share reserve")
		eq(t, pool.CashReserve, "30000", outcome+" cash reserve")
		eq(t, pool.K, "900000000", outcome+" k")
	}
}

func TestCreateMarketValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	endTime := time.Now().UTC().Add(time.Hour)

	cases := []struct {
		name   string
		params CreateMarketParams
	}{
		{"empty question", CreateMarketParams{
			Outcomes: []string{"Yes", "No"}, EndTime: endTime,
		}},
		{"single outcome", CreateMarketParams{
			Question: "q?", Outcomes: []string{"Yes"}, EndTime: endTime,
		}},
		{"duplicate outcomes", CreateMarketParams{
			Question: "q?", Outcomes: []string{"Yes", " Yes "}, EndTime: endTime,
		}},
		{"end time too soon", CreateMarketParams{
			Question: "q?", Outcomes: []string{"Yes", "No"},
			EndTime: time.Now().UTC().Add(time.Second),
		}},
		{"end time too far", CreateMarketParams{
			Question: "q?", Outcomes: []string{"Yes", "No"},
			EndTime: time.Now().UTC().Add(10000 * time.Hour),
		}},
		{"deadline before end", CreateMarketParams{
			Question: "q?", Outcomes: []string{"Yes", "No"}, EndTime: endTime,
			ResolutionDeadline: &time.Time{},
		}},
		{"liquidity below floor", CreateMarketParams{
			Question: "q?", Outcomes: []string{"Yes", "No"}, EndTime: endTime,
			InitialLiquidity: decimal.NewFromInt(10),
		}},
	}
	for _, tc := range cases {
		if _, err := env.Markets.Create(ctx, tc.params); !errors.Is(err, ErrInvalidMarket) {
			t.Fatalf("%s: got %v, want ErrInvalidMarket", tc.name, err)
		}
	}
}

func TestCreateMarketDefaultLiquidity(t *testing.T) {
	env := newTestEnv(t)
	market, err := env.Markets.Create(context.Background(), CreateMarketParams{
		Question: "q?",
		Outcomes: []string{"Yes", "No"},
		EndTime:  time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	eq(t, market.InitialLiquidity, "10000", "default liquidity")
}

func TestLifecycleTransitions(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")
	ctx := context.Background()

	if err := env.Markets.Resume(ctx, market.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume active: got %v, want ErrInvalidTransition", err)
	}
	if err := env.Markets.Pause(ctx, market.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := env.Markets.Pause(ctx, market.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double pause: got %v, want ErrInvalidTransition", err)
	}
	if err := env.Markets.End(ctx, market.ID); err != nil {
		t.Fatalf("end paused: %v", err)
	}
	if err := env.Markets.End(ctx, market.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double end: got %v, want ErrInvalidTransition", err)
	}
	if err := env.Markets.Pause(ctx, "missing"); !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("pause missing: got %v, want ErrMarketNotFound", err)
	}
}

func TestGetStateNormalizesProbabilities(t *testing.T) {
	env := newTestEnv(t)
	market := env.createMarket(t, "1000", "Yes", "No")
	ctx := context.Background()

	if _, err := env.Trades.PlaceBet(ctx, market.ID, "Yes", decimal.NewFromInt(500), "alice"); err != nil {
		t.Fatalf("bet: %v", err)
	}

	state, err := env.Markets.GetState(ctx, market.ID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if len(state.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(state.Outcomes))
	}
	sum := decimal.Zero
	var yes, no OutcomeState
	for _, o := range state.Outcomes {
		sum = sum.Add(o.Probability)
		switch o.Outcome {
		case "Yes":
			yes = o
		case "No":
			no = o
		}
	}
	if !yes.ImpliedPrice.GreaterThan(no.ImpliedPrice) {
		t.Fatalf("yes price %s not above no price %s", yes.ImpliedPrice, no.ImpliedPrice)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.New(1, -6)) {
		t.Fatalf("probabilities sum to %s, want ~1", sum)
	}
}

func TestListMarketsFilters(t *testing.T) {
	env := newTestEnv(t)
	a := env.createMarket(t, "1000", "Yes", "No")
	env.createMarket(t, "1000", "Yes", "No")
	ctx := context.Background()

	if err := env.Markets.End(ctx, a.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	status := models.MarketStatusEnded
	items, total, err := env.Markets.List(ctx, repository.ListMarketsParams{
		Limit:  10,
		Status: &status,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("filtered list = %d items, total %d", len(items), total)
	}
}
