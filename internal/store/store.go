// Package store defines the persistence interface for the agent engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer for agent reads.
//
// Cross-invocation state lives entirely in these rows — the engine holds
// nothing in memory between requests beyond its per-agent locks.
type Store interface {
	// WithTx runs fn against a transactional view of the store. Either every
	// write inside fn persists or none does. Implementations without real
	// transactions (memory) run fn directly; the engine's per-agent lock
	// provides the serialization in that case.
	WithTx(ctx context.Context, fn func(Store) error) error

	// --- Agents ---

	CreateAgent(ctx context.Context, agent *model.Agent) error
	GetAgent(ctx context.Context, id string) (*model.Agent, error)
	ListAgentsByStatus(ctx context.Context, status string) ([]model.Agent, error)
	ListAgents(ctx context.Context) ([]model.Agent, error)

	// UpdateAgent persists the agent's mutable fields (status, balances,
	// shares, earnings, burn bookkeeping). Callers must hold the agent's
	// serialization boundary.
	UpdateAgent(ctx context.Context, agent *model.Agent) error

	// --- Investments ---

	CreateInvestment(ctx context.Context, inv *model.Investment) error
	GetInvestment(ctx context.Context, id string) (*model.Investment, error)
	ListOpenInvestmentsByAgent(ctx context.Context, agentID string) ([]model.Investment, error)
	ListInvestmentsByUser(ctx context.Context, userID string) ([]model.Investment, error)
	MarkInvestmentWithdrawn(ctx context.Context, id string, at time.Time) error

	// --- Trades ---

	CreateTrade(ctx context.Context, trade *model.Trade) error
	GetTrade(ctx context.Context, id string) (*model.Trade, error)
	GetOpenTradeByAgent(ctx context.Context, agentID string) (*model.Trade, error)
	ListOpenTrades(ctx context.Context) ([]model.Trade, error)
	CloseTrade(ctx context.Context, id string, exitPrice, realizedPnL decimal.Decimal, closedAt time.Time) error

	// --- Immutable ledger ---

	InsertTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionsByAgent(ctx context.Context, agentID string) ([]model.Transaction, error)
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)

	// --- Energy log (append-only, fuel-only mirror of the ledger) ---

	InsertEnergyLog(ctx context.Context, log *model.EnergyLog) error
	GetEnergyLogsByAgent(ctx context.Context, agentID string) ([]model.EnergyLog, error)

	// --- Pending payouts ---

	CreatePendingPayout(ctx context.Context, p *model.PendingPayout) error
	UpdatePayoutStatus(ctx context.Context, id, status string, sentAt *time.Time) error
	ListPayoutsByStatus(ctx context.Context, status string) ([]model.PendingPayout, error)
}
