package pool_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/pool"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestShareValue(t *testing.T) {
	// Empty pool bootstraps at 1.
	if v := pool.ShareValue(decimal.Zero, decimal.Zero); !v.Equal(d(1)) {
		t.Errorf("empty pool share value = %s, want 1", v)
	}
	// 1500 capital / 1000 shares = 1.5.
	if v := pool.ShareValue(d(1500), d(1000)); !v.Equal(d(1.5)) {
		t.Errorf("share value = %s, want 1.5", v)
	}
	// Insolvent pool: zero capital, shares outstanding → worthless shares.
	if v := pool.ShareValue(decimal.Zero, d(1000)); !v.IsZero() {
		t.Errorf("zero-capital pool share value = %s, want 0", v)
	}
}

func TestSharesForDeposit(t *testing.T) {
	// First deposit into an empty pool is 1:1.
	if s := pool.SharesForDeposit(d(700), decimal.Zero, decimal.Zero); !s.Equal(d(700)) {
		t.Errorf("founding shares = %s, want 700", s)
	}
	// At share value 1.5, $300 buys 200 shares.
	if s := pool.SharesForDeposit(d(300), d(1500), d(1000)); !s.Equal(d(200)) {
		t.Errorf("shares = %s, want 200", s)
	}
}

// A pool worth 1000 with 1000 shares takes a $500 investment, then a trade
// settles +300 gross. The new investor's claim grows proportionally.
func TestPoolScenario_InvestThenProfit(t *testing.T) {
	capital := d(1000)
	totalShares := d(1000)

	// Investor puts in $500 at share value 1.0 → 500 shares.
	shares := pool.SharesForDeposit(d(500), capital, totalShares)
	if !shares.Equal(d(500)) {
		t.Fatalf("shares = %s, want 500", shares)
	}
	capital = capital.Add(d(500))
	totalShares = totalShares.Add(shares)

	// +300 gross through the 20% waterfall → +240 net.
	st := pool.Waterfall(d(300), d(0.20))
	if !st.PerformanceFee.Equal(d(60)) {
		t.Errorf("performance fee = %s, want 60", st.PerformanceFee)
	}
	if !st.CreatorFee.Equal(d(30)) {
		t.Errorf("creator fee = %s, want 30", st.CreatorFee)
	}
	if !st.PlatformFee.Equal(d(30)) {
		t.Errorf("platform fee = %s, want 30", st.PlatformFee)
	}
	if !st.NetPnL.Equal(d(240)) {
		t.Errorf("net pnl = %s, want 240", st.NetPnL)
	}

	capital, insolvent := pool.ApplyPnL(capital, st.NetPnL)
	if insolvent {
		t.Fatal("profitable settlement should not flag insolvency")
	}
	if !capital.Equal(d(1740)) {
		t.Fatalf("pool capital = %s, want 1740", capital)
	}

	// The investor's 500 of 1500 shares now claim a third of 1740.
	claimable, err := pool.Claimable(shares, totalShares, capital)
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}
	if !claimable.Equal(d(580)) {
		t.Errorf("claimable = %s, want 580", claimable)
	}
}

func TestWaterfall_LossPassesThrough(t *testing.T) {
	st := pool.Waterfall(d(-150), d(0.20))
	if !st.NetPnL.Equal(d(-150)) {
		t.Errorf("net pnl = %s, want -150", st.NetPnL)
	}
	if !st.PerformanceFee.IsZero() || !st.CreatorFee.IsZero() || !st.PlatformFee.IsZero() {
		t.Errorf("losses must not be fee-taxed: fee=%s creator=%s platform=%s",
			st.PerformanceFee, st.CreatorFee, st.PlatformFee)
	}
}

func TestWaterfall_ZeroGross(t *testing.T) {
	st := pool.Waterfall(decimal.Zero, d(0.20))
	if !st.NetPnL.IsZero() || !st.PerformanceFee.IsZero() {
		t.Errorf("breakeven trade should produce zero fees and zero net, got %+v", st)
	}
}

func TestWaterfall_FeeSplitSumsExactly(t *testing.T) {
	// An odd fee amount cannot split evenly; the platform half absorbs the
	// rounding remainder so creator+platform always equals the full fee.
	st := pool.Waterfall(d(0.00000015), d(0.20))
	if !st.CreatorFee.Add(st.PlatformFee).Equal(st.PerformanceFee) {
		t.Errorf("fee split leaks: creator=%s platform=%s fee=%s",
			st.CreatorFee, st.PlatformFee, st.PerformanceFee)
	}
	if !st.NetPnL.Add(st.PerformanceFee).Equal(st.GrossPnL) {
		t.Errorf("net + fee != gross: net=%s fee=%s gross=%s",
			st.NetPnL, st.PerformanceFee, st.GrossPnL)
	}
}

func TestApplyPnL_InsolvencyClampsToZero(t *testing.T) {
	capital, insolvent := pool.ApplyPnL(d(100), d(-250))
	if !insolvent {
		t.Error("loss exceeding capital should flag insolvency")
	}
	if !capital.IsZero() {
		t.Errorf("insolvent pool capital = %s, want 0", capital)
	}

	// Exactly wiping out the pool is not insolvency.
	capital, insolvent = pool.ApplyPnL(d(100), d(-100))
	if insolvent {
		t.Error("loss exactly equal to capital should not flag insolvency")
	}
	if !capital.IsZero() {
		t.Errorf("capital = %s, want 0", capital)
	}
}

func TestClaimable_Errors(t *testing.T) {
	if _, err := pool.Claimable(d(10), decimal.Zero, decimal.Zero); !errors.Is(err, pool.ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}
	if _, err := pool.Claimable(d(2000), d(1000), d(1000)); !errors.Is(err, pool.ErrExcessShares) {
		t.Errorf("expected ErrExcessShares, got %v", err)
	}
}

func TestWithdrawalSplit(t *testing.T) {
	net, fee := pool.WithdrawalSplit(d(580), d(0.01))
	if !fee.Equal(d(5.8)) {
		t.Errorf("fee = %s, want 5.8", fee)
	}
	if !net.Equal(d(574.2)) {
		t.Errorf("net = %s, want 574.2", net)
	}
	if !net.Add(fee).Equal(d(580)) {
		t.Error("net + fee must equal claimable")
	}
}
