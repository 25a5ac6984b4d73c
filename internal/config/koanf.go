package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/yumcup/config.yaml",
}

const ConfigPathEnvVar = "CONFIG_PATH"

// Generic override prefix: YUMCUP_DISCOVERY__CACHE_TTL sets discovery.cache_ttl.
const envPrefix = "yumcup_"

// Load builds the configuration: defaults, then the first config file found, then env vars.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"cors.origins",
}

// processSliceFields splits comma-separated env values into lists.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"port":      "server.port",
	"http_port": "server.port",
	"http_host": "server.host",

	"server_read_timeout":     "server.read_timeout",
	"server_write_timeout":    "server.write_timeout",
	"server_shutdown_timeout": "server.shutdown_timeout",

	"database_driver":            "database.driver",
	"database_url":               "database.url",
	"database_max_open_conns":    "database.max_open_conns",
	"database_max_idle_conns":    "database.max_idle_conns",
	"database_conn_max_lifetime": "database.conn_max_lifetime",

	"redis_url":            "redis.url",
	"cache_sweep_interval": "redis.sweep_interval",

	"kakao_api_key":  "kakao.api_key",
	"kakao_base_url": "kakao.base_url",
	"kakao_timeout":  "kakao.timeout",

	"google_api_key":        "google.api_key",
	"google_base_url":       "google.base_url",
	"google_timeout":        "google.timeout",
	"google_enrichment_ttl": "google.enrichment_ttl",

	"upstream_retry_attempts":       "upstream.retry_attempts",
	"upstream_retry_base_delay":     "upstream.retry_base_delay",
	"upstream_breaker_open_timeout": "upstream.breaker_open_timeout",
	"upstream_breaker_failure_rate": "upstream.breaker_failure_rate",

	"discovery_cache_ttl":         "discovery.cache_ttl",
	"discovery_geohash_precision": "discovery.geohash_precision",
	"discovery_eager_pages":       "discovery.eager_pages",
	"discovery_max_pages":         "discovery.max_pages",
	"discovery_enrichment_budget": "discovery.enrichment_budget",
	"discovery_minimum_required":  "discovery.minimum_required",
	"discovery_stale_after":       "discovery.stale_after",

	"game_bracket_size": "game.bracket_size",
	"game_seed":         "game.seed",

	"worker_count":          "worker.workers",
	"worker_queue_size":     "worker.queue_size",
	"worker_task_timeout":   "worker.task_timeout",
	"worker_shutdown_grace": "worker.shutdown_grace",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"cors_origins": "cors.origins",

	"rate_limit_requests": "ratelimit.requests",
	"rate_limit_window":   "ratelimit.window",
	"disable_rate_limit":  "ratelimit.disabled",
}

// envTransformFunc maps an environment variable to a koanf key. Unknown variables map to ""
// and are dropped.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	if rest, ok := strings.CutPrefix(key, envPrefix); ok && strings.Contains(rest, "__") {
		return strings.ReplaceAll(rest, "__", ".")
	}
	return ""
}
