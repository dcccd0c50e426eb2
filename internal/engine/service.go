// Package engine implements the agent economic engine: the metabolism/fuel
// model governing agent lifecycle, pooled-capital investor accounting, and
// the trade-open → trade-settle fee waterfall, coordinated by idempotent
// periodic sweeps.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every mutating operation serializes on the target agent's lock and runs
// its balance mutation and ledger write inside one store transaction:
// either both persist or neither does.
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/config"
	"github.com/pvpai/agent-engine/internal/model"
	"github.com/pvpai/agent-engine/internal/store"
)

// Service owns the economic state machine. Per-agent operations are
// linearized by an in-process keyed mutex; cross-agent operations run in
// parallel. For horizontal scaling, replace the keyed mutex with
// database-level optimistic concurrency.
type Service struct {
	store    store.Store
	cfg      *config.Config
	signals  SignalSource
	exchange ExchangeFeed
	payouts  PayoutSender
	hub      *EventHub // optional, nil disables broadcasts
	locks    *agentLocks
}

// NewService creates a new engine service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, cfg *config.Config, signals SignalSource, exchange ExchangeFeed, payouts PayoutSender, hub *EventHub) *Service {
	return &Service{
		store:    st,
		cfg:      cfg,
		signals:  signals,
		exchange: exchange,
		payouts:  payouts,
		hub:      hub,
		locks:    newAgentLocks(),
	}
}

// Store exposes the underlying store for read-only callers (sweeps, tests).
func (s *Service) Store() store.Store { return s.store }

// Config exposes the engine configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// newTransaction builds a ledger entry with generated ID and timestamp.
func newTransaction(userID, agentID, txnType string, amount, before, after decimal.Decimal, desc string) *model.Transaction {
	return &model.Transaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		AgentID:       agentID,
		Type:          txnType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   desc,
		CreatedAt:     time.Now().UTC(),
	}
}

// newEnergyLog builds an energy log entry with generated ID and timestamp.
func newEnergyLog(agentID, reason string, amount decimal.Decimal) *model.EnergyLog {
	return &model.EnergyLog{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Service) broadcast(event Event) {
	if s.hub != nil {
		s.hub.Broadcast(event)
	}
}
