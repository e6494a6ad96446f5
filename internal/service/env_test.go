package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"marketengine/internal/config"
	"marketengine/internal/events"
	"marketengine/internal/locks"
	"marketengine/internal/models"
	gormrepository "marketengine/internal/repository/gorm"
)

type testEnv struct {
	DB          *gorm.DB
	Markets     *MarketService
	Trades      *TradeService
	Settlement  *SettlementService
	Resolutions *ResolutionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb, err := gdb.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	// a second connection would see a different :memory: database
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	err = gdb.AutoMigrate(
		&models.Market{},
		&models.OutcomePool{},
		&models.Position{},
		&models.ResolutionVote{},
		&models.Resolution{},
		&models.Payout{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := gormrepository.New(gdb)
	lockMgr := locks.NewManager()
	hub := events.NewHub(64, zap.NewNop())
	t.Cleanup(hub.Close)

	engineCfg := config.EngineConfig{
		MinBet:                  1,
		MaxBet:                  1000000,
		LockTimeout:             3 * time.Second,
		HouseEdgeBps:            0,
		MinInitialLiquidity:     1000,
		MaxInitialLiquidity:     1000000,
		DefaultInitialLiquidity: 10000,
		MinMarketDuration:       time.Minute,
		MaxMarketDuration:       720 * time.Hour,
	}
	resCfg := config.ResolutionConfig{
		MinVotes:      3,
		DefaultWeight: 1,
		DisputeWindow: 24 * time.Hour,
	}

	settlement := &SettlementService{
		Repo:   store,
		Locks:  lockMgr,
		Hub:    hub,
		Config: engineCfg,
		Logger: zap.NewNop(),
	}
	return &testEnv{
		DB: gdb,
		Markets: &MarketService{
			Repo:   store,
			Locks:  lockMgr,
			Hub:    hub,
			Config: engineCfg,
			Logger: zap.NewNop(),
		},
		Trades: &TradeService{
			Repo:   store,
			Locks:  lockMgr,
			Hub:    hub,
			Config: engineCfg,
			Logger: zap.NewNop(),
		},
		Settlement: settlement,
		Resolutions: &ResolutionService{
			Repo:       store,
			Locks:      lockMgr,
			Hub:        hub,
			Engine:     engineCfg,
			Config:     resCfg,
			Settlement: settlement,
			Logger:     zap.NewNop(),
		},
	}
}

func (e *testEnv) createMarket(t *testing.T, liquidity string, outcomes ...string) *models.Market {
	t.Helper()
	market, err := e.Markets.Create(context.Background(), CreateMarketParams{
		Question:         "test market?",
		Outcomes:         outcomes,
		EndTime:          time.Now().UTC().Add(time.Hour),
		InitialLiquidity: decimal.RequireFromString(liquidity),
		CreatedBy:        "tester",
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return market
}

func (e *testEnv) pool(t *testing.T, marketID, outcome string) *models.OutcomePool {
	t.Helper()
	var pool models.OutcomePool
	err := e.DB.Where("market_id = ? AND outcome = ?", marketID, outcome).First(&pool).Error
	if err != nil {
		t.Fatalf("load pool %s/%s: %v", marketID, outcome, err)
	}
	return &pool
}

func (e *testEnv) market(t *testing.T, id string) *models.Market {
	t.Helper()
	var market models.Market
	if err := e.DB.Where("id = ?", id).First(&market).Error; err != nil {
		t.Fatalf("load market %s: %v", id, err)
	}
	return &market
}

func eq(t *testing.T, got decimal.Decimal, want string, label string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s = %s, want %s", label, got, want)
	}
}
