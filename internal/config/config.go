// Package config loads yumcup settings from struct defaults, an optional YAML file and the
// environment, in that order of precedence.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/db"
	"github.com/AdamBeresnev/yumcup/internal/discovery"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/AdamBeresnev/yumcup/internal/service"
	"github.com/AdamBeresnev/yumcup/internal/source"
	"github.com/AdamBeresnev/yumcup/internal/worker"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Kakao     UpstreamAPI     `koanf:"kakao"`
	Google    GoogleConfig    `koanf:"google"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Game      GameConfig      `koanf:"game"`
	Worker    WorkerConfig    `koanf:"worker"`
	Logging   LoggingConfig   `koanf:"logging"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig selects the result cache. An empty URL keeps results in process memory.
type RedisConfig struct {
	URL           string        `koanf:"url"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type UpstreamAPI struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

type GoogleConfig struct {
	BaseURL       string        `koanf:"base_url"`
	APIKey        string        `koanf:"api_key"`
	Timeout       time.Duration `koanf:"timeout"`
	EnrichmentTTL time.Duration `koanf:"enrichment_ttl"`
}

type UpstreamConfig struct {
	RetryAttempts      int           `koanf:"retry_attempts"`
	RetryBaseDelay     time.Duration `koanf:"retry_base_delay"`
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
	BreakerMinRequests uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRate float64       `koanf:"breaker_failure_rate"`
}

type DiscoveryConfig struct {
	Purpose          string        `koanf:"purpose"`
	GeohashPrecision uint          `koanf:"geohash_precision"`
	CacheTTL         time.Duration `koanf:"cache_ttl"`
	EagerPages       int           `koanf:"eager_pages"`
	MaxPages         int           `koanf:"max_pages"`
	EnrichmentBudget time.Duration `koanf:"enrichment_budget"`
	MinimumRequired  int           `koanf:"minimum_required"`
	StaleAfter       time.Duration `koanf:"stale_after"`
}

type GameConfig struct {
	BracketSize int    `koanf:"bracket_size"`
	Seed        uint64 `koanf:"seed"`
}

type WorkerConfig struct {
	Workers       int           `koanf:"workers"`
	QueueSize     int           `koanf:"queue_size"`
	TaskTimeout   time.Duration `koanf:"task_timeout"`
	ShutdownGrace time.Duration `koanf:"shutdown_grace"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Disabled bool          `koanf:"disabled"`
}

func defaultConfig() *Config {
	disc := discovery.DefaultConfig()
	pool := worker.DefaultConfig()
	retry := source.DefaultRetryConfig()
	breaker := source.DefaultBreakerConfig()

	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          db.DriverSQLite,
			URL:             db.DefaultSQLiteDSN,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			SweepInterval: time.Minute,
		},
		Kakao: UpstreamAPI{
			BaseURL: "https://dapi.kakao.com",
			Timeout: 5 * time.Second,
		},
		Google: GoogleConfig{
			BaseURL:       "https://maps.googleapis.com",
			Timeout:       5 * time.Second,
			EnrichmentTTL: source.DefaultEnrichmentTTL,
		},
		Upstream: UpstreamConfig{
			RetryAttempts:      retry.Attempts,
			RetryBaseDelay:     retry.BaseDelay,
			BreakerMaxRequests: breaker.MaxRequests,
			BreakerInterval:    breaker.Interval,
			BreakerOpenTimeout: breaker.OpenTimeout,
			BreakerMinRequests: breaker.MinRequests,
			BreakerFailureRate: breaker.FailureRate,
		},
		Discovery: DiscoveryConfig{
			Purpose:          disc.Purpose,
			GeohashPrecision: disc.Precision,
			CacheTTL:         disc.CacheTTL,
			EagerPages:       disc.EagerPages,
			MaxPages:         disc.MaxPages,
			EnrichmentBudget: disc.EnrichmentBudget,
			MinimumRequired:  service.DefaultBracketSize,
			StaleAfter:       place.DefaultStaleAfter,
		},
		Game: GameConfig{
			BracketSize: service.DefaultBracketSize,
		},
		Worker: WorkerConfig{
			Workers:       pool.Workers,
			QueueSize:     pool.QueueSize,
			TaskTimeout:   pool.TaskTimeout,
			ShutdownGrace: pool.ShutdownGrace,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			Origins: []string{
				"http://localhost:3000",
				"https://yumcup.store",
				"https://www.yumcup.store",
			},
		},
		RateLimit: RateLimitConfig{
			Requests: 30,
			Window:   time.Minute,
		},
	}
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) DB() db.Config {
	return db.Config{
		Driver:          c.Database.Driver,
		DSN:             c.Database.URL,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

func (c *Config) Log() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}

func (c *Config) Retry() source.RetryConfig {
	return source.RetryConfig{Attempts: c.Upstream.RetryAttempts, BaseDelay: c.Upstream.RetryBaseDelay}
}

func (c *Config) Breaker() source.BreakerConfig {
	return source.BreakerConfig{
		MaxRequests: c.Upstream.BreakerMaxRequests,
		Interval:    c.Upstream.BreakerInterval,
		OpenTimeout: c.Upstream.BreakerOpenTimeout,
		MinRequests: c.Upstream.BreakerMinRequests,
		FailureRate: c.Upstream.BreakerFailureRate,
	}
}

func (c *Config) Orchestrator() discovery.Config {
	return discovery.Config{
		Purpose:          c.Discovery.Purpose,
		Precision:        c.Discovery.GeohashPrecision,
		CacheTTL:         c.Discovery.CacheTTL,
		EagerPages:       c.Discovery.EagerPages,
		MaxPages:         c.Discovery.MaxPages,
		EnrichmentBudget: c.Discovery.EnrichmentBudget,
	}
}

func (c *Config) Pool() worker.Config {
	return worker.Config{
		Workers:       c.Worker.Workers,
		QueueSize:     c.Worker.QueueSize,
		TaskTimeout:   c.Worker.TaskTimeout,
		ShutdownGrace: c.Worker.ShutdownGrace,
	}
}

func (c *Config) LocationGame() service.LocationGameConfig {
	return service.LocationGameConfig{
		BracketSize:     c.Game.BracketSize,
		MinimumRequired: c.Discovery.MinimumRequired,
		Seed:            c.Game.Seed,
	}
}
