package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/energy"
	"github.com/pvpai/agent-engine/internal/metrics"
	"github.com/pvpai/agent-engine/internal/model"
	"github.com/pvpai/agent-engine/internal/store"
)

// BurnResult is returned from a burn application.
type BurnResult struct {
	NewBalance decimal.Decimal `json:"new_balance"`
	Died       bool            `json:"died"`
}

// BurnEnergy deducts burn_rate × elapsed hours of fuel from an active
// agent. If the balance would go to or below zero the agent dies: the
// balance is clamped to zero (never persisted negative), the capital pool
// freezes pending investor withdrawal, and a death marker is logged.
func (s *Service) BurnEnergy(ctx context.Context, agentID string, elapsedHours decimal.Decimal) (*BurnResult, error) {
	unlock := s.locks.acquire(agentID)
	defer unlock()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != model.AgentActive {
		return nil, fmt.Errorf("%w: agent is %s", ErrAgentNotActive, agent.Status)
	}

	burn := energy.BurnAmount(agent.BurnRatePerHour, elapsedHours)
	if burn.IsZero() {
		return &BurnResult{NewBalance: agent.EnergyBalance}, nil
	}

	now := time.Now().UTC()
	remaining := agent.EnergyBalance.Sub(burn)
	died := energy.IsDepleted(remaining)

	// The deducted amount is capped at what the agent actually had, so the
	// energy log sums to the persisted balance.
	deducted := burn
	if died {
		deducted = agent.EnergyBalance
		remaining = decimal.Zero
	}

	agent.EnergyBalance = remaining
	agent.LastBurnAt = now
	if died {
		agent.Status = model.AgentDead
		agent.DiedAt = &now
	}

	err = s.store.WithTx(ctx, func(st store.Store) error {
		if err := st.UpdateAgent(ctx, agent); err != nil {
			return err
		}
		if err := st.InsertEnergyLog(ctx, newEnergyLog(agentID, model.EnergyHourlyBurn, deducted.Neg())); err != nil {
			return err
		}
		if died {
			return st.InsertEnergyLog(ctx, newEnergyLog(agentID, model.EnergyDeath, decimal.Zero))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if died {
		metrics.AgentDeaths.Inc()
		s.broadcast(Event{Type: "agent_died", AgentID: agentID})
		slog.Info("agent died", "agent", agentID, "cause", "energy depletion")
	}
	return &BurnResult{NewBalance: remaining, Died: died}, nil
}

// ForceKill transitions an active agent to dead outside the burn path —
// used by the monitor sweep to escalate insolvency.
func (s *Service) ForceKill(ctx context.Context, agentID, cause string) error {
	unlock := s.locks.acquire(agentID)
	defer unlock()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.Status != model.AgentActive {
		return fmt.Errorf("%w: agent is %s", ErrAgentNotActive, agent.Status)
	}

	now := time.Now().UTC()
	agent.Status = model.AgentDead
	agent.DiedAt = &now

	err = s.store.WithTx(ctx, func(st store.Store) error {
		if err := st.UpdateAgent(ctx, agent); err != nil {
			return err
		}
		return st.InsertEnergyLog(ctx, newEnergyLog(agentID, model.EnergyDeath, decimal.Zero))
	})
	if err != nil {
		return err
	}

	metrics.AgentDeaths.Inc()
	s.broadcast(Event{Type: "agent_died", AgentID: agentID})
	slog.Info("agent died", "agent", agentID, "cause", cause)
	return nil
}

// Recharge tops up a live agent's fuel from a verified USD payment.
// Creator-only; a dead agent must be resurrected instead.
func (s *Service) Recharge(ctx context.Context, agentID, callerID string, amountUSD decimal.Decimal) (*model.Agent, error) {
	if amountUSD.LessThan(s.cfg.MinRechargeUSD) {
		return nil, fmt.Errorf("%w: recharge requires at least %s USD", ErrBelowMinimum, s.cfg.MinRechargeUSD)
	}

	unlock := s.locks.acquire(agentID)
	defer unlock()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.OwnerID != callerID {
		return nil, ErrNotOwner
	}
	if agent.Status != model.AgentActive && agent.Status != model.AgentPaused {
		return nil, fmt.Errorf("%w: recharge not allowed from %s", ErrInvalidState, agent.Status)
	}

	fuel := energy.FuelForUSD(amountUSD, s.cfg.PVPPerUSD)
	before := agent.EnergyBalance
	agent.EnergyBalance = agent.EnergyBalance.Add(fuel)

	err = s.store.WithTx(ctx, func(st store.Store) error {
		if err := st.UpdateAgent(ctx, agent); err != nil {
			return err
		}
		if err := st.InsertTransaction(ctx, newTransaction(
			callerID, agentID, model.TxnEnergyPurchase,
			amountUSD, before, agent.EnergyBalance,
			fmt.Sprintf("energy purchase: %s USD for %s fuel", amountUSD, fuel),
		)); err != nil {
			return err
		}
		return st.InsertEnergyLog(ctx, newEnergyLog(agentID, model.EnergyRecharge, fuel))
	})
	if err != nil {
		return nil, err
	}

	slog.Info("agent recharged", "agent", agentID, "fuel_added", fuel.String())
	return agent, nil
}
