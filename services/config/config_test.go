package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("port %d", cfg.Server.HTTPPort)
	}
	if cfg.Redis.Enabled {
		t.Fatal("redis enabled by default")
	}
	if cfg.Redis.TTL != 5*time.Minute {
		t.Fatalf("redis ttl %v", cfg.Redis.TTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_TTL", "30s")
	t.Setenv("MAX_WORKERS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Fatalf("port %d", cfg.Server.HTTPPort)
	}
	if !cfg.Redis.Enabled || cfg.Redis.TTL != 30*time.Second {
		t.Fatalf("redis config %+v", cfg.Redis)
	}
	if cfg.Engine.MaxWorkers != 4 {
		t.Fatalf("max workers %d", cfg.Engine.MaxWorkers)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Fatal("malformed HTTP_PORT accepted")
	}
}
