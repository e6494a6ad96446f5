package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketengine/internal/config"
	cronrunner "marketengine/internal/cron"
	"marketengine/internal/db"
	"marketengine/internal/events"
	"marketengine/internal/handler"
	"marketengine/internal/locks"
	"marketengine/internal/logger"
	gormrepository "marketengine/internal/repository/gorm"
	"marketengine/internal/service"
)

func main() {
	cfgPath := os.Getenv("ME_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := strings.EqualFold(os.Getenv("ME_ENV_ONLY"), "true")

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	database, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close(database) //nolint:errcheck
	if err := db.SetTimezone(database, cfg.DB.Timezone); err != nil {
		log.Warn("set db timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(database); err != nil {
		log.Fatal("migrate database", zap.Error(err))
	}

	store := gormrepository.New(database.Gorm)
	lockMgr := locks.NewManager()
	hub := events.NewHub(cfg.Events.SubscriberBuffer, log)
	defer hub.Close()

	markets := &service.MarketService{
		Repo:   store,
		Locks:  lockMgr,
		Hub:    hub,
		Config: cfg.Engine,
		Logger: log,
	}
	trades := &service.TradeService{
		Repo:   store,
		Locks:  lockMgr,
		Hub:    hub,
		Config: cfg.Engine,
		Logger: log,
	}
	settlement := &service.SettlementService{
		Repo:   store,
		Locks:  lockMgr,
		Hub:    hub,
		Config: cfg.Engine,
		Logger: log,
	}
	resolutions := &service.ResolutionService{
		Repo:       store,
		Locks:      lockMgr,
		Hub:        hub,
		Engine:     cfg.Engine,
		Config:     cfg.Resolution,
		Settlement: settlement,
		Logger:     log,
	}
	worker := &service.MarketWorker{
		Repo:       store,
		Markets:    markets,
		Settlement: settlement,
		Batch:      cfg.Cron.SweepBatch,
		Logger:     log,
	}

	if strings.EqualFold(cfg.App.Env, "prod") || strings.EqualFold(cfg.App.Env, "production") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	(&handler.HealthHandler{DB: database.Gorm}).Register(engine)
	(&handler.MarketHandler{Markets: markets, Settlement: settlement, Logger: log}).Register(engine)
	(&handler.TradeHandler{Trades: trades, Logger: log}).Register(engine)
	(&handler.ResolutionHandler{Resolutions: resolutions, Settlement: settlement, Logger: log}).Register(engine)
	(&handler.EventsHandler{Hub: hub, Logger: log}).Register(engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(log, ctx)
		if _, err := cronRunner.Add(cfg.Cron.EndSweep, worker.RunEndSweep); err != nil {
			log.Warn("register end sweep", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Cron.RefundSweep, worker.RunRefundSweep); err != nil {
			log.Warn("register refund sweep", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}
