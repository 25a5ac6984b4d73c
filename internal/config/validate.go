package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/AdamBeresnev/yumcup/internal/bracket"
	"github.com/AdamBeresnev/yumcup/internal/db"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch strings.ToLower(c.Database.Driver) {
	case db.DriverSQLite, "sqlite", db.DriverPostgres, "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not supported", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	if c.Redis.URL == "" && c.Redis.SweepInterval <= 0 {
		errs = append(errs, errors.New("redis.sweep_interval must be positive for the in-memory cache"))
	}
	if c.Redis.URL != "" {
		if u, err := url.Parse(c.Redis.URL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, errors.New("REDIS_URL must be a redis:// or rediss:// URL"))
		}
	}

	if c.Kakao.APIKey == "" {
		errs = append(errs, errors.New("KAKAO_API_KEY is required"))
	}
	if c.Google.APIKey == "" {
		errs = append(errs, errors.New("GOOGLE_API_KEY is required"))
	}
	for name, raw := range map[string]string{"KAKAO_BASE_URL": c.Kakao.BaseURL, "GOOGLE_BASE_URL": c.Google.BaseURL} {
		if err := validateHTTPURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s is invalid: %w", name, err))
		}
	}

	if c.Upstream.RetryAttempts < 1 {
		errs = append(errs, errors.New("upstream.retry_attempts must be at least 1"))
	}
	if c.Upstream.BreakerFailureRate <= 0 || c.Upstream.BreakerFailureRate > 1 {
		errs = append(errs, errors.New("upstream.breaker_failure_rate must be in (0, 1]"))
	}

	if c.Discovery.GeohashPrecision < 1 || c.Discovery.GeohashPrecision > 12 {
		errs = append(errs, fmt.Errorf("discovery.geohash_precision must be between 1 and 12, got %d", c.Discovery.GeohashPrecision))
	}
	if c.Discovery.MaxPages < 1 {
		errs = append(errs, errors.New("discovery.max_pages must be at least 1"))
	}
	if c.Discovery.CacheTTL <= 0 {
		errs = append(errs, errors.New("discovery.cache_ttl must be positive"))
	}

	if !bracket.IsPowerOfTwo(c.Game.BracketSize) {
		errs = append(errs, fmt.Errorf("game.bracket_size must be a power of two, got %d", c.Game.BracketSize))
	}
	if c.Discovery.MinimumRequired < c.Game.BracketSize {
		errs = append(errs, fmt.Errorf("DISCOVERY_MINIMUM_REQUIRED (%d) must be at least the bracket size (%d)",
			c.Discovery.MinimumRequired, c.Game.BracketSize))
	}

	if c.Worker.Workers < 1 {
		errs = append(errs, errors.New("worker.workers must be at least 1"))
	}
	if c.Worker.TaskTimeout <= 0 {
		errs = append(errs, errors.New("worker.task_timeout must be positive"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not recognised", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format))
	}

	if !c.RateLimit.Disabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit needs positive requests and window unless disabled"))
	}

	return errors.Join(errs...)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
