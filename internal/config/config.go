package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Events     EventsConfig     `mapstructure:"events"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	EndSweep    string `mapstructure:"end_sweep"`
	RefundSweep string `mapstructure:"refund_sweep"`
	SweepBatch  int    `mapstructure:"sweep_batch"`
}

// EngineConfig bounds trade execution and market creation.
type EngineConfig struct {
	MinBet                  float64       `mapstructure:"min_bet"`
	MaxBet                  float64       `mapstructure:"max_bet"`
	LockTimeout             time.Duration `mapstructure:"lock_timeout"`
	HouseEdgeBps            int64         `mapstructure:"house_edge_bps"`
	MinInitialLiquidity     float64       `mapstructure:"min_initial_liquidity"`
	MaxInitialLiquidity     float64       `mapstructure:"max_initial_liquidity"`
	DefaultInitialLiquidity float64       `mapstructure:"default_initial_liquidity"`
	MinMarketDuration       time.Duration `mapstructure:"min_market_duration"`
	MaxMarketDuration       time.Duration `mapstructure:"max_market_duration"`
}

type ResolutionConfig struct {
	MinVotes      int           `mapstructure:"min_votes"`
	DefaultWeight float64       `mapstructure:"default_weight"`
	DisputeWindow time.Duration `mapstructure:"dispute_window"`
}

type EventsConfig struct {
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.end_sweep", "@every 30s")
	v.SetDefault("cron.refund_sweep", "@every 5m")
	v.SetDefault("cron.sweep_batch", 100)
	v.SetDefault("engine.min_bet", 1)
	v.SetDefault("engine.max_bet", 1000000)
	v.SetDefault("engine.lock_timeout", "3s")
	v.SetDefault("engine.house_edge_bps", 0)
	v.SetDefault("engine.min_initial_liquidity", 1000)
	v.SetDefault("engine.max_initial_liquidity", 1000000)
	v.SetDefault("engine.default_initial_liquidity", 10000)
	v.SetDefault("engine.min_market_duration", "5m")
	v.SetDefault("engine.max_market_duration", "720h")
	v.SetDefault("resolution.min_votes", 3)
	v.SetDefault("resolution.default_weight", 1)
	v.SetDefault("resolution.dispute_window", "24h")
	v.SetDefault("events.subscriber_buffer", 256)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
