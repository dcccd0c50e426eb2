package energy_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/energy"
	"github.com/pvpai/agent-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestEstimateLifespanHours(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		rate    float64
		want    float64
	}{
		{"basic tier full tank", 240, 10, 24},
		{"fractional result", 25, 10, 2.5},
		{"zero balance", 0, 10, 0},
		{"negative balance", -5, 10, 0},
		{"already depleted with high rate", 0, 60, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := energy.EstimateLifespanHours(d(tt.balance), d(tt.rate))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EstimateLifespanHours(%v, %v) = %v, want %v",
					tt.balance, tt.rate, got, tt.want)
			}
		})
	}
}

func TestEstimateLifespanHours_ZeroRateIsUnbounded(t *testing.T) {
	got := energy.EstimateLifespanHours(d(100), decimal.Zero)
	if !math.IsInf(got, 1) {
		t.Errorf("zero burn rate should give +Inf lifespan, got %v", got)
	}

	got = energy.EstimateLifespanHours(d(100), d(-1))
	if !math.IsInf(got, 1) {
		t.Errorf("negative burn rate should give +Inf lifespan, got %v", got)
	}
}

func TestBurnAmount(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		elapsed float64
		want    float64
	}{
		{"one hour basic", 10, 1, 10},
		{"half hour pro", 25, 0.5, 12.5},
		{"zero elapsed", 10, 0, 0},
		{"negative elapsed burns nothing", 10, -2, 0},
		{"zero rate burns nothing", 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := energy.BurnAmount(d(tt.rate), d(tt.elapsed))
			if !got.Equal(d(tt.want)) {
				t.Errorf("BurnAmount(%v, %v) = %s, want %v", tt.rate, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestFuelForUSD(t *testing.T) {
	// $15 at 100 PVP/USD buys 1500 fuel.
	got := energy.FuelForUSD(d(15), d(100))
	if !got.Equal(d(1500)) {
		t.Errorf("FuelForUSD(15, 100) = %s, want 1500", got)
	}
}

func TestRateForTier(t *testing.T) {
	table := energy.DefaultBurnTable()

	rate, err := table.RateForTier(model.TierPro)
	if err != nil {
		t.Fatalf("RateForTier(pro): %v", err)
	}
	if !rate.Equal(d(25)) {
		t.Errorf("pro rate = %s, want 25", rate)
	}

	if _, err := table.RateForTier("platinum"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestCanTrade(t *testing.T) {
	min := d(1)
	if !energy.CanTrade(d(1), min) {
		t.Error("balance exactly at threshold should allow trading")
	}
	if energy.CanTrade(d(0.5), min) {
		t.Error("balance below threshold should block trading")
	}
}

func TestIsDepleted(t *testing.T) {
	if !energy.IsDepleted(decimal.Zero) {
		t.Error("zero balance is depleted")
	}
	if !energy.IsDepleted(d(-0.001)) {
		t.Error("negative balance is depleted")
	}
	if energy.IsDepleted(d(0.001)) {
		t.Error("positive balance is not depleted")
	}
}
