// Package model defines the core domain types shared across the agent engine.
// All monetary and fuel values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agent lifecycle statuses. See the state machine in engine/lifecycle.go.
const (
	AgentDraft  = "draft"
	AgentActive = "active"
	AgentPaused = "paused"
	AgentClosed = "closed"
	AgentDead   = "dead"
)

// Agent tiers. The tier determines the hourly fuel burn rate.
const (
	TierBasic = "basic"
	TierPro   = "pro"
	TierWhale = "whale"
)

// Trade directions.
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Trade statuses.
const (
	TradeOpen   = "open"
	TradeClosed = "closed"
)

// Investment statuses.
const (
	InvestmentOpen      = "open"
	InvestmentWithdrawn = "withdrawn"
)

// Ledger transaction types.
const (
	TxnAgentMint      = "agent_mint"
	TxnInvestment     = "investment"
	TxnTradePnL       = "trade_pnl"
	TxnPerformanceFee = "performance_fee"
	TxnReferralFee    = "referral_fee"
	TxnEnergyPurchase = "energy_purchase"
	TxnCapitalReturn  = "capital_return"
	TxnWithdrawal     = "withdrawal"
	TxnWithdrawalFee  = "withdrawal_fee"
	TxnCreatorClaim   = "creator_claim"
	TxnUpgradeFee     = "upgrade_fee"
)

// Energy log reasons.
const (
	EnergyHourlyBurn  = "hourly_burn"
	EnergyManualTopup = "manual_topup"
	EnergyRecharge    = "recharge"
	EnergyVampireFeed = "vampire_feed"
	EnergyDeath       = "death"
)

// Pending payout statuses.
const (
	PayoutPending = "pending"
	PayoutSent    = "sent"
	PayoutFailed  = "failed"
)

// Agent is an autonomous trading agent with a pooled capital balance and a
// decaying fuel balance. CapitalBalance and TotalShares form the investor
// pool; the pair must only ever be mutated under the agent's serialization
// boundary.
type Agent struct {
	ID              string          `json:"id" db:"id"`
	OwnerID         string          `json:"owner_id" db:"owner_id"`
	Name            string          `json:"name" db:"name"`
	Status          string          `json:"status" db:"status"`
	Tier            string          `json:"tier" db:"tier"`
	DirectionBias   string          `json:"direction_bias" db:"direction_bias"` // "long" or "short"
	MaxPositionPct  decimal.Decimal `json:"max_position_pct" db:"max_position_pct"`
	Leverage        int             `json:"leverage" db:"leverage"`
	CapitalBalance  decimal.Decimal `json:"capital_balance" db:"capital_balance"`
	TotalShares     decimal.Decimal `json:"total_shares" db:"total_shares"`
	EnergyBalance   decimal.Decimal `json:"energy_balance" db:"energy_balance"`
	BurnRatePerHour decimal.Decimal `json:"burn_rate_per_hour" db:"burn_rate_per_hour"`
	CreatorEarnings decimal.Decimal `json:"creator_earnings" db:"creator_earnings"`
	Insolvent       bool            `json:"insolvent" db:"insolvent"`
	LastBurnAt      time.Time       `json:"last_burn_at" db:"last_burn_at"`
	DiedAt          *time.Time      `json:"died_at,omitempty" db:"died_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Investment is one investor's contribution to an agent's capital pool.
// Principal and Shares are fixed at contribution time; the claimable value
// floats with the pool's share value.
type Investment struct {
	ID          string          `json:"id" db:"id"`
	AgentID     string          `json:"agent_id" db:"agent_id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Principal   decimal.Decimal `json:"principal" db:"principal"`
	Shares      decimal.Decimal `json:"shares" db:"shares"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	WithdrawnAt *time.Time      `json:"withdrawn_at,omitempty" db:"withdrawn_at"`
}

// Trade is a single leveraged position. At most one open Trade exists per
// agent. Immutable once closed.
type Trade struct {
	ID            string           `json:"id" db:"id"`
	AgentID       string           `json:"agent_id" db:"agent_id"`
	Direction     string           `json:"direction" db:"direction"`
	SizeUSD       decimal.Decimal  `json:"size_usd" db:"size_usd"`
	Leverage      int              `json:"leverage" db:"leverage"`
	EntryPrice    decimal.Decimal  `json:"entry_price" db:"entry_price"`
	ExitPrice     *decimal.Decimal `json:"exit_price,omitempty" db:"exit_price"`
	RealizedPnL   *decimal.Decimal `json:"realized_pnl,omitempty" db:"realized_pnl"` // net, nil until settled
	TriggerReason string           `json:"trigger_reason" db:"trigger_reason"`
	Status        string           `json:"status" db:"status"`
	OpenedAt      time.Time        `json:"opened_at" db:"opened_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty" db:"closed_at"`
}

// Transaction is an immutable ledger entry. Every balance mutation writes
// exactly one entry with before/after snapshots of the mutated balance.
// Once created, these are never modified or deleted.
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	AgentID       string          `json:"agent_id,omitempty" db:"agent_id"`
	Type          string          `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"` // signed
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	Description   string          `json:"description" db:"description"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// EnergyLog mirrors the ledger for fuel-only events. Append-only.
type EnergyLog struct {
	ID        string          `json:"id" db:"id"`
	AgentID   string          `json:"agent_id" db:"agent_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"` // signed fuel delta
	Reason    string          `json:"reason" db:"reason"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// PendingPayout records the intent to pay a withdrawal on-chain before the
// investor's shares are burned, so a failed transfer can be retried without
// re-running the share accounting.
type PendingPayout struct {
	ID           string          `json:"id" db:"id"`
	InvestmentID string          `json:"investment_id" db:"investment_id"`
	UserID       string          `json:"user_id" db:"user_id"`
	AmountUSD    decimal.Decimal `json:"amount_usd" db:"amount_usd"`
	Status       string          `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	SentAt       *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
}

// InvestorPosition is a read-model row: one investor's current claim on an
// agent's pool, marked at the current share value.
type InvestorPosition struct {
	AgentID       string          `json:"agent_id"`
	InvestmentID  string          `json:"investment_id"`
	Principal     decimal.Decimal `json:"principal"`
	Shares        decimal.Decimal `json:"shares"`
	ShareOfPool   decimal.Decimal `json:"share_of_pool"`  // shares / total_shares
	CurrentValue  decimal.Decimal `json:"current_value"`  // claimable before fees
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"` // currentValue - principal
}
