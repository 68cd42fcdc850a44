// Package config loads service configuration from the environment, with a
// .env file honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	HTTPPort int
}

// ClickHouseConfig holds bar-store connection settings. HTTPURL is the HTTP
// interface used by the batch results writer.
type ClickHouseConfig struct {
	Addr     string
	HTTPURL  string
	Database string
	Table    string
	Username string
	Password string
}

// RedisConfig holds scan-cache settings. Disabled means the service runs
// without a cache.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// EngineConfig bounds the per-symbol worker pool. Zero means one worker per
// CPU.
type EngineConfig struct {
	MaxWorkers int
}

// Config is the full service configuration.
type Config struct {
	Environment string
	Server      ServerConfig
	ClickHouse  ClickHouseConfig
	Redis       RedisConfig
	Engine      EngineConfig
}

// Load reads configuration from the environment. A missing .env file is not
// an error; malformed numeric values are.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: env("ENVIRONMENT", "development"),
		Server: ServerConfig{
			HTTPPort: 8080,
		},
		ClickHouse: ClickHouseConfig{
			Addr:     env("CLICKHOUSE_ADDR", "localhost:9000"),
			HTTPURL:  env("CLICKHOUSE_HTTP_URL", "http://localhost:8123"),
			Database: env("CH_DATABASE", "scanner"),
			Table:    env("CH_TABLE", "bars"),
			Username: env("CH_USER", "scanner"),
			Password: env("CH_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Enabled:  envBool("REDIS_ENABLED", false),
			Addr:     env("REDIS_ADDR", "localhost:6379"),
			Password: env("REDIS_PASSWORD", ""),
			TTL:      5 * time.Minute,
		},
	}

	var err error
	if cfg.Server.HTTPPort, err = envInt("HTTP_PORT", cfg.Server.HTTPPort); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = envDuration("REDIS_TTL", cfg.Redis.TTL); err != nil {
		return nil, err
	}
	if cfg.Engine.MaxWorkers, err = envInt("MAX_WORKERS", 0); err != nil {
		return nil, err
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
