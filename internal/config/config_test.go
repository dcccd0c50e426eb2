package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/config"
	"github.com/pvpai/agent-engine/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Port)
	}
	if !cfg.MinMintUSD.Equal(decimal.NewFromInt(50)) {
		t.Errorf("min mint = %s, want 50", cfg.MinMintUSD)
	}
	if !cfg.PerformanceFeePct.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("performance fee = %s, want 0.20", cfg.PerformanceFeePct)
	}
	if !cfg.CapitalSplitPct.Equal(decimal.RequireFromString("0.70")) {
		t.Errorf("capital split = %s, want 0.70", cfg.CapitalSplitPct)
	}
	if !cfg.BurnRates[model.TierBasic].Equal(decimal.NewFromInt(10)) {
		t.Errorf("basic burn rate = %s, want 10", cfg.BurnRates[model.TierBasic])
	}
	if cfg.MonitorInterval != 0 {
		t.Errorf("monitor interval = %v, want 0 (external cron by default)", cfg.MonitorInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MIN_MINT_USD", "100")
	t.Setenv("BURN_RATE_WHALE", "75")
	t.Setenv("MONITOR_INTERVAL", "5m")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.MinMintUSD.Equal(decimal.NewFromInt(100)) {
		t.Errorf("min mint = %s, want 100", cfg.MinMintUSD)
	}
	if !cfg.BurnRates[model.TierWhale].Equal(decimal.NewFromInt(75)) {
		t.Errorf("whale burn rate = %s, want 75", cfg.BurnRates[model.TierWhale])
	}
	if cfg.MonitorInterval != 5*time.Minute {
		t.Errorf("monitor interval = %v, want 5m", cfg.MonitorInterval)
	}
}

func TestLoad_InvalidBurnRate(t *testing.T) {
	t.Setenv("BURN_RATE_PRO", "not-a-number")

	if _, err := config.Load(); err == nil {
		t.Error("expected error for invalid burn rate override")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("CRON_SECRET", "s3cret")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config with secret should validate: %v", err)
	}

	cfg.CronSecret = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "CRON_SECRET") {
		t.Errorf("missing secret should fail validation, got %v", err)
	}

	cfg.CronSecret = "s3cret"
	cfg.PerformanceFeePct = decimal.NewFromInt(2)
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "PERFORMANCE_FEE_PCT") {
		t.Errorf("fee above 1 should fail validation, got %v", err)
	}

	cfg.PerformanceFeePct = decimal.RequireFromString("0.20")
	cfg.MinTradeSizeUSD = decimal.NewFromInt(500)
	cfg.MaxTradeSizeUSD = decimal.NewFromInt(100)
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "MIN_TRADE_SIZE_USD") {
		t.Errorf("inverted trade bounds should fail validation, got %v", err)
	}
}
