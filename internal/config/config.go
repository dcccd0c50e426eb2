// Package config loads engine configuration from the environment.
// A .env file is honored when present; every knob has a sensible default
// so a development instance runs with nothing set.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/energy"
	"github.com/pvpai/agent-engine/internal/model"
)

type Config struct {
	// Server
	Port            string
	DatabaseURL     string
	RedisURL        string
	CORSAllowOrigin string

	// Shared secret authenticating scheduler-to-engine sweep calls.
	CronSecret string

	// Outbound service URLs. Empty selects the development fallback adapter.
	SignalServiceURL   string
	ExchangeServiceURL string
	PayoutServiceURL   string

	// Economic thresholds (USD).
	MinMintUSD       decimal.Decimal
	MinRechargeUSD   decimal.Decimal
	MinInvestmentUSD decimal.Decimal
	MinTradeSizeUSD  decimal.Decimal
	MaxTradeSizeUSD  decimal.Decimal

	// Fee and split percentages, expressed as fractions (0.20 = 20%).
	PerformanceFeePct decimal.Decimal
	WithdrawalFeePct  decimal.Decimal
	CapitalSplitPct   decimal.Decimal // capital share of a mint; remainder buys fuel

	// Fuel economy.
	PVPPerUSD       decimal.Decimal
	MinEnergyToLive decimal.Decimal
	BurnRates       energy.BurnTable

	// Sweep intervals for the in-process scheduler. Zero disables a ticker;
	// the sweep endpoints remain available for external cron.
	MonitorInterval time.Duration
	SettleInterval  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            envStr("PORT", "8080"),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		RedisURL:        envStr("REDIS_URL", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),
		CronSecret:      envStr("CRON_SECRET", ""),

		SignalServiceURL:   envStr("SIGNAL_SERVICE_URL", ""),
		ExchangeServiceURL: envStr("EXCHANGE_SERVICE_URL", ""),
		PayoutServiceURL:   envStr("PAYOUT_SERVICE_URL", ""),

		MinMintUSD:       envDecimal("MIN_MINT_USD", "50"),
		MinRechargeUSD:   envDecimal("MIN_RECHARGE_USD", "5"),
		MinInvestmentUSD: envDecimal("MIN_INVESTMENT_USD", "10"),
		MinTradeSizeUSD:  envDecimal("MIN_TRADE_SIZE_USD", "10"),
		MaxTradeSizeUSD:  envDecimal("MAX_TRADE_SIZE_USD", "100000"),

		PerformanceFeePct: envDecimal("PERFORMANCE_FEE_PCT", "0.20"),
		WithdrawalFeePct:  envDecimal("WITHDRAWAL_FEE_PCT", "0.01"),
		CapitalSplitPct:   envDecimal("CAPITAL_SPLIT_PCT", "0.70"),

		PVPPerUSD:       envDecimal("PVP_PER_USD", "100"),
		MinEnergyToLive: envDecimal("MIN_ENERGY_TO_LIVE", "1"),

		MonitorInterval: envDuration("MONITOR_INTERVAL", 0),
		SettleInterval:  envDuration("SETTLE_INTERVAL", 0),
	}

	rates := energy.DefaultBurnTable()
	for tier, key := range map[string]string{
		model.TierBasic: "BURN_RATE_BASIC",
		model.TierPro:   "BURN_RATE_PRO",
		model.TierWhale: "BURN_RATE_WHALE",
	} {
		if v := os.Getenv(key); v != "" {
			rate, err := decimal.NewFromString(v)
			if err != nil {
				return nil, fmt.Errorf("config: invalid %s: %w", key, err)
			}
			rates[tier] = rate
		}
	}
	cfg.BurnRates = rates

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.CronSecret == "" {
		errs = append(errs, "CRON_SECRET is required (authenticates sweep invocations)")
	}
	if c.PerformanceFeePct.IsNegative() || c.PerformanceFeePct.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "PERFORMANCE_FEE_PCT must be in [0, 1]")
	}
	if c.WithdrawalFeePct.IsNegative() || c.WithdrawalFeePct.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "WITHDRAWAL_FEE_PCT must be in [0, 1]")
	}
	if c.CapitalSplitPct.LessThanOrEqual(decimal.Zero) || c.CapitalSplitPct.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "CAPITAL_SPLIT_PCT must be in (0, 1)")
	}
	if c.PVPPerUSD.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, "PVP_PER_USD must be positive")
	}
	if c.MinTradeSizeUSD.GreaterThan(c.MaxTradeSizeUSD) {
		errs = append(errs, "MIN_TRADE_SIZE_USD must not exceed MAX_TRADE_SIZE_USD")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
