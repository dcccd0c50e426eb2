package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	agents      map[string]*model.Agent
	investments map[string]*model.Investment
	trades      map[string]*model.Trade
	ledger      []model.Transaction
	energyLog   []model.EnergyLog
	payouts     map[string]*model.PendingPayout
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:      make(map[string]*model.Agent),
		investments: make(map[string]*model.Investment),
		trades:      make(map[string]*model.Trade),
		payouts:     make(map[string]*model.PendingPayout),
	}
}

// WithTx runs fn directly. The memory store has no transactions; the
// engine's per-agent lock serializes the unit of work.
func (s *MemoryStore) WithTx(_ context.Context, fn func(Store) error) error {
	return fn(s)
}

// --- Agents ---

func (s *MemoryStore) CreateAgent(_ context.Context, a *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[a.ID]; exists {
		return fmt.Errorf("agent %s already exists", a.ID)
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (*model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAgentsByStatus(_ context.Context, status string) ([]model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var agents []model.Agent
	for _, a := range s.agents {
		if a.Status == status {
			agents = append(agents, *a)
		}
	}
	return agents, nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]model.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, *a)
	}
	return agents, nil
}

func (s *MemoryStore) UpdateAgent(_ context.Context, a *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[a.ID]; !ok {
		return fmt.Errorf("agent %s: %w", a.ID, ErrNotFound)
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

// --- Investments ---

func (s *MemoryStore) CreateInvestment(_ context.Context, inv *model.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inv
	s.investments[inv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetInvestment(_ context.Context, id string) (*model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.investments[id]
	if !ok {
		return nil, fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) ListOpenInvestmentsByAgent(_ context.Context, agentID string) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Investment
	for _, inv := range s.investments {
		if inv.AgentID == agentID && inv.Status == model.InvestmentOpen {
			result = append(result, *inv)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListInvestmentsByUser(_ context.Context, userID string) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Investment
	for _, inv := range s.investments {
		if inv.UserID == userID {
			result = append(result, *inv)
		}
	}
	return result, nil
}

func (s *MemoryStore) MarkInvestmentWithdrawn(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.investments[id]
	if !ok {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	inv.Status = model.InvestmentWithdrawn
	inv.WithdrawnAt = &at
	return nil
}

// --- Trades ---

func (s *MemoryStore) CreateTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.trades[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTrade(_ context.Context, id string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetOpenTradeByAgent(_ context.Context, agentID string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.trades {
		if t.AgentID == agentID && t.Status == model.TradeOpen {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("open trade for agent %s: %w", agentID, ErrNotFound)
}

func (s *MemoryStore) ListOpenTrades(_ context.Context) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.Status == model.TradeOpen {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (s *MemoryStore) CloseTrade(_ context.Context, id string, exitPrice, realizedPnL decimal.Decimal, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	t.Status = model.TradeClosed
	t.ExitPrice = &exitPrice
	t.RealizedPnL = &realizedPnL
	t.ClosedAt = &closedAt
	return nil
}

// --- Ledger ---

func (s *MemoryStore) InsertTransaction(_ context.Context, txn *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *txn)
	return nil
}

func (s *MemoryStore) GetTransactionsByAgent(_ context.Context, agentID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, e := range s.ledger {
		if e.AgentID == agentID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, e := range s.ledger {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

// --- Energy log ---

func (s *MemoryStore) InsertEnergyLog(_ context.Context, log *model.EnergyLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.energyLog = append(s.energyLog, *log)
	return nil
}

func (s *MemoryStore) GetEnergyLogsByAgent(_ context.Context, agentID string) ([]model.EnergyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.EnergyLog
	for _, e := range s.energyLog {
		if e.AgentID == agentID {
			result = append(result, e)
		}
	}
	return result, nil
}

// --- Pending payouts ---

func (s *MemoryStore) CreatePendingPayout(_ context.Context, p *model.PendingPayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.payouts[p.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdatePayoutStatus(_ context.Context, id, status string, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[id]
	if !ok {
		return fmt.Errorf("payout %s: %w", id, ErrNotFound)
	}
	p.Status = status
	p.SentAt = sentAt
	return nil
}

func (s *MemoryStore) ListPayoutsByStatus(_ context.Context, status string) ([]model.PendingPayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PendingPayout
	for _, p := range s.payouts {
		if p.Status == status {
			result = append(result, *p)
		}
	}
	return result, nil
}
