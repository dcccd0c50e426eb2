// Package pool implements share-based capital pool accounting for agent
// investor claims, and the settlement fee waterfall applied to realized P&L.
//
// Investors hold proportional claims on a pool whose value moves as trades
// settle. Contributions are converted to shares at the current share value
// and converted back at withdrawal time, so withdrawals stay fair to the
// remaining holders regardless of when P&L landed.
//
// The package is pure — callers own serialization and persistence.
// All values use shopspring/decimal.
package pool

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoPosition is returned when withdrawing from a pool with no shares.
	ErrNoPosition = errors.New("pool: no shares outstanding")

	// ErrExcessShares is returned when withdrawing more shares than exist.
	ErrExcessShares = errors.New("pool: shares exceed total outstanding")

	// MoneyScale is the number of decimal places USD amounts are rounded to.
	MoneyScale int32 = 8
)

var one = decimal.NewFromInt(1)

// ShareValue returns the current USD value of one pool share:
// capital / totalShares. An empty pool bootstraps at 1.
func ShareValue(capital, totalShares decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return one
	}
	return capital.Div(totalShares)
}

// SharesForDeposit converts a USD contribution into shares at the current
// share value. The first contribution into an empty pool is issued 1:1.
func SharesForDeposit(amount, capital, totalShares decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return amount
	}
	return amount.Div(ShareValue(capital, totalShares)).Round(MoneyScale)
}

// Claimable returns the USD value of a share position at the current pool
// state: (shares / totalShares) * capital.
func Claimable(shares, totalShares, capital decimal.Decimal) (decimal.Decimal, error) {
	if totalShares.IsZero() {
		return decimal.Zero, ErrNoPosition
	}
	if shares.GreaterThan(totalShares) {
		return decimal.Zero, ErrExcessShares
	}
	return shares.Div(totalShares).Mul(capital).Round(MoneyScale), nil
}

// WithdrawalSplit nets a withdrawal fee out of a claimable amount.
// The fee is platform revenue and is ledgered separately.
func WithdrawalSplit(claimable, feePct decimal.Decimal) (net, fee decimal.Decimal) {
	fee = claimable.Mul(feePct).Round(MoneyScale)
	return claimable.Sub(fee), fee
}

// Settlement is the result of running realized P&L through the fee waterfall.
type Settlement struct {
	GrossPnL       decimal.Decimal `json:"gross_pnl"`
	PerformanceFee decimal.Decimal `json:"performance_fee"`
	CreatorFee     decimal.Decimal `json:"creator_fee"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	NetPnL         decimal.Decimal `json:"net_pnl"`
}

// Waterfall applies the performance fee to a settled trade's gross P&L.
// Only profits are fee-taxed: the fee is gross * feePct, split evenly
// between creator and platform, and the remainder flows back to the pool.
// Losses pass through untouched.
func Waterfall(grossPnL, feePct decimal.Decimal) Settlement {
	if grossPnL.LessThanOrEqual(decimal.Zero) {
		return Settlement{
			GrossPnL: grossPnL,
			NetPnL:   grossPnL,
		}
	}

	perfFee := grossPnL.Mul(feePct).Round(MoneyScale)
	half := perfFee.Div(decimal.NewFromInt(2)).Round(MoneyScale)

	return Settlement{
		GrossPnL:       grossPnL,
		PerformanceFee: perfFee,
		CreatorFee:     half,
		PlatformFee:    perfFee.Sub(half), // absorbs any rounding remainder
		NetPnL:         grossPnL.Sub(perfFee),
	}
}

// ApplyPnL adds net P&L to the pool's capital. A loss that would drive the
// pool below zero clamps to zero and flags the agent insolvent — the pool
// value is never allowed to go negative.
func ApplyPnL(capital, netPnL decimal.Decimal) (newCapital decimal.Decimal, insolvent bool) {
	newCapital = capital.Add(netPnL)
	if newCapital.IsNegative() {
		return decimal.Zero, true
	}
	return newCapital, false
}
