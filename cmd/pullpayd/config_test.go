package main

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEV_MODE", "true")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.EvictAfter != 1 || cfg.MaxChargesPerRun != 1 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo || !cfg.MetricsEnabled {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.MetadataHTTP || cfg.MetadataPrivate {
		t.Errorf("direct metadata fetches enabled by default: %+v", cfg)
	}
	if cfg.DevSeedAmount.String() != "1000" || len(cfg.DevSeedAccounts) != 0 {
		t.Errorf("unexpected seed defaults: %+v", cfg)
	}
}

func TestLoadConfigRequiresDevMode(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := loadConfig(); !errors.Is(err, errNoMover) {
		t.Fatalf("expected errNoMover, got %v", err)
	}
}

func TestLoadConfigSeed(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEV_MODE", "true")
	t.Setenv("DEV_SEED_ACCOUNTS", "0xAlice, 0xBob,")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for seed accounts without a token")
	}

	t.Setenv("DEV_SEED_TOKEN", "0xUSD")
	t.Setenv("DEV_SEED_AMOUNT", "250")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.DevSeedAccounts) != 2 || cfg.DevSeedAccounts[1] != "0xBob" || cfg.DevSeedAmount.String() != "250" {
		t.Errorf("seed not applied: %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EVICT_AFTER", "3")
	t.Setenv("PROCESS_TIMEOUT", "90s")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("METADATA_ALLOW_HTTP", "true")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.EvictAfter != 3 || cfg.ProcessTimeout != 90*time.Second || cfg.MetricsEnabled || !cfg.MetadataHTTP {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EVICT_AFTER", "many")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for invalid values")
	}
}
