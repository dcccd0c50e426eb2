// Package energy implements the fuel (PVP point) model that governs agent
// lifecycle: hourly burn, lifespan estimation, and the death condition.
//
// The package is pure — it computes deltas and estimates but never touches
// storage. Fuel amounts use shopspring/decimal; durations in hours use
// float64 so an unbounded lifespan can be expressed as +Inf.
package energy

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/model"
)

var (
	// ErrUnknownTier is returned when a tier has no burn-rate entry.
	ErrUnknownTier = errors.New("energy: unknown agent tier")

	// FuelScale is the number of decimal places fuel amounts are rounded to.
	FuelScale int32 = 4
)

// BurnTable maps an agent tier to its hourly fuel burn rate.
type BurnTable map[string]decimal.Decimal

// DefaultBurnTable returns the built-in per-tier burn rates (fuel/hour).
func DefaultBurnTable() BurnTable {
	return BurnTable{
		model.TierBasic: decimal.NewFromInt(10),
		model.TierPro:   decimal.NewFromInt(25),
		model.TierWhale: decimal.NewFromInt(60),
	}
}

// RateForTier looks up the hourly burn rate for a tier.
func (t BurnTable) RateForTier(tier string) (decimal.Decimal, error) {
	rate, ok := t[tier]
	if !ok {
		return decimal.Zero, ErrUnknownTier
	}
	return rate, nil
}

// EstimateLifespanHours returns the hours until the agent's fuel reaches
// zero at the current burn rate. Returns +Inf when the burn rate is zero or
// negative, and 0 when the balance is already depleted.
func EstimateLifespanHours(balance, burnRatePerHour decimal.Decimal) float64 {
	if burnRatePerHour.LessThanOrEqual(decimal.Zero) {
		return math.Inf(1)
	}
	if balance.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return balance.Div(burnRatePerHour).InexactFloat64()
}

// BurnAmount returns the fuel consumed over elapsedHours at the given rate.
// Negative elapsed time burns nothing.
func BurnAmount(burnRatePerHour, elapsedHours decimal.Decimal) decimal.Decimal {
	if elapsedHours.LessThanOrEqual(decimal.Zero) || burnRatePerHour.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return burnRatePerHour.Mul(elapsedHours).Round(FuelScale)
}

// FuelForUSD converts a USD amount to fuel at the configured PVP-per-USD rate.
func FuelForUSD(amountUSD, pvpPerUSD decimal.Decimal) decimal.Decimal {
	return amountUSD.Mul(pvpPerUSD).Round(FuelScale)
}

// IsDepleted reports whether a balance has reached the death condition.
// A balance may transiently go negative inside a burn application; the
// caller must clamp it to zero before persisting.
func IsDepleted(balance decimal.Decimal) bool {
	return balance.LessThanOrEqual(decimal.Zero)
}

// CanTrade reports whether the balance clears the minimum-to-live threshold
// used to gate new trades. The threshold is distinct from zero: an agent on
// fumes keeps existing positions but may not open new ones.
func CanTrade(balance, minEnergyToLive decimal.Decimal) bool {
	return balance.GreaterThanOrEqual(minEnergyToLive)
}
