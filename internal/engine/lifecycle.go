package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/energy"
	"github.com/pvpai/agent-engine/internal/metrics"
	"github.com/pvpai/agent-engine/internal/model"
	"github.com/pvpai/agent-engine/internal/pool"
	"github.com/pvpai/agent-engine/internal/store"
)

// MintParams are the inputs for creating a new agent.
type MintParams struct {
	OwnerID        string          `json:"owner_id"`
	Name           string          `json:"name"`
	Tier           string          `json:"tier"`
	DirectionBias  string          `json:"direction_bias"`
	MaxPositionPct decimal.Decimal `json:"max_position_pct"`
	Leverage       int             `json:"leverage"`
	AmountUSD      decimal.Decimal `json:"amount_usd"`
}

// Mint creates a new agent from a verified USD deposit. The deposit splits
// into trading capital and fuel by the configured ratio; the creator
// receives the founding shares of the pool at 1:1. The agent goes straight
// from draft to active once both halves are funded.
func (s *Service) Mint(ctx context.Context, p MintParams) (*model.Agent, error) {
	if p.OwnerID == "" || p.Name == "" {
		return nil, fmt.Errorf("%w: owner_id and name are required", ErrInvalidInput)
	}
	if p.DirectionBias != model.DirectionLong && p.DirectionBias != model.DirectionShort {
		return nil, fmt.Errorf("%w: direction_bias must be long or short", ErrInvalidInput)
	}
	if p.MaxPositionPct.LessThanOrEqual(decimal.Zero) || p.MaxPositionPct.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: max_position_pct must be in (0, 1]", ErrInvalidInput)
	}
	if p.Leverage < 1 || p.Leverage > 100 {
		return nil, fmt.Errorf("%w: leverage must be in [1, 100]", ErrInvalidInput)
	}
	burnRate, err := s.cfg.BurnRates.RateForTier(p.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, p.Tier)
	}
	if p.AmountUSD.LessThan(s.cfg.MinMintUSD) {
		return nil, fmt.Errorf("%w: mint requires at least %s USD", ErrBelowMinimum, s.cfg.MinMintUSD)
	}

	now := time.Now().UTC()
	capital := p.AmountUSD.Mul(s.cfg.CapitalSplitPct).Round(pool.MoneyScale)
	fuel := energy.FuelForUSD(p.AmountUSD.Sub(capital), s.cfg.PVPPerUSD)

	agent := &model.Agent{
		ID:              uuid.New().String(),
		OwnerID:         p.OwnerID,
		Name:            p.Name,
		Status:          model.AgentDraft,
		Tier:            p.Tier,
		DirectionBias:   p.DirectionBias,
		MaxPositionPct:  p.MaxPositionPct,
		Leverage:        p.Leverage,
		CapitalBalance:  capital,
		TotalShares:     capital, // founding shares issued 1:1
		EnergyBalance:   fuel,
		BurnRatePerHour: burnRate,
		CreatorEarnings: decimal.Zero,
		LastBurnAt:      now,
		CreatedAt:       now,
	}
	// Both halves funded: draft → active.
	agent.Status = model.AgentActive

	founding := &model.Investment{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		UserID:    p.OwnerID,
		Principal: capital,
		Shares:    capital,
		Status:    model.InvestmentOpen,
		CreatedAt: now,
	}

	err = s.store.WithTx(ctx, func(st store.Store) error {
		if err := st.CreateAgent(ctx, agent); err != nil {
			return err
		}
		if err := st.CreateInvestment(ctx, founding); err != nil {
			return err
		}
		if err := st.InsertTransaction(ctx, newTransaction(
			p.OwnerID, agent.ID, model.TxnAgentMint,
			capital, decimal.Zero, capital,
			fmt.Sprintf("agent mint: %s capital / %s fuel from %s USD", capital, fuel, p.AmountUSD),
		)); err != nil {
			return err
		}
		return st.InsertEnergyLog(ctx, newEnergyLog(agent.ID, model.EnergyManualTopup, fuel))
	})
	if err != nil {
		return nil, err
	}

	slog.Info("agent minted",
		"agent", agent.ID,
		"owner", p.OwnerID,
		"tier", p.Tier,
		"capital", capital.String(),
		"fuel", fuel.String(),
	)
	return agent, nil
}

// Pause moves an active agent to paused. Creator-only.
func (s *Service) Pause(ctx context.Context, agentID, callerID string) (*model.Agent, error) {
	return s.transition(ctx, agentID, callerID, model.AgentActive, model.AgentPaused)
}

// Resume moves a paused agent back to active. Creator-only.
func (s *Service) Resume(ctx context.Context, agentID, callerID string) (*model.Agent, error) {
	return s.transition(ctx, agentID, callerID, model.AgentPaused, model.AgentActive)
}

// transition applies a guarded single-step status change. Any transition
// attempted from a disallowed source state fails with InvalidState and no
// mutation is applied.
func (s *Service) transition(ctx context.Context, agentID, callerID, from, to string) (*model.Agent, error) {
	unlock := s.locks.acquire(agentID)
	defer unlock()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.OwnerID != callerID {
		return nil, ErrNotOwner
	}
	if agent.Status != from {
		return nil, fmt.Errorf("%w: %s → %s not allowed from %s", ErrInvalidState, from, to, agent.Status)
	}

	agent.Status = to
	if err := s.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	slog.Info("agent transitioned", "agent", agentID, "from", from, "to", to)
	return agent, nil
}

// CloseAgent permanently retires an active or paused agent. Creator-only.
// A dead agent cannot be closed — it must be resurrected first.
func (s *Service) CloseAgent(ctx context.Context, agentID, callerID string) (*model.Agent, error) {
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
		return nil, fmt.Errorf("%w: close not allowed from %s", ErrInvalidState, agent.Status)
	}

	agent.Status = model.AgentClosed
	if err := s.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	slog.Info("agent closed", "agent", agentID)
	return agent, nil
}

// Resurrect brings a dead agent back to active with fresh funding. The new
// deposit splits capital/fuel like a mint; capital buys pool shares at the
// current share value so surviving investors are not diluted unfairly. The
// burn rate is re-derived from the tier and the death marker is cleared.
// A failed funding step leaves the agent dead.
func (s *Service) Resurrect(ctx context.Context, agentID, callerID string, amountUSD decimal.Decimal) (*model.Agent, error) {
	unlock := s.locks.acquire(agentID)
	defer unlock()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.OwnerID != callerID {
		return nil, ErrNotOwner
	}
	if agent.Status != model.AgentDead {
		return nil, fmt.Errorf("%w: agent is %s", ErrNotDead, agent.Status)
	}
	if amountUSD.LessThan(s.cfg.MinMintUSD) {
		return nil, fmt.Errorf("%w: resurrection requires at least %s USD", ErrBelowMinimum, s.cfg.MinMintUSD)
	}

	burnRate, err := s.cfg.BurnRates.RateForTier(agent.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, agent.Tier)
	}

	now := time.Now().UTC()
	capital := amountUSD.Mul(s.cfg.CapitalSplitPct).Round(pool.MoneyScale)
	fuel := energy.FuelForUSD(amountUSD.Sub(capital), s.cfg.PVPPerUSD)
	shares := pool.SharesForDeposit(capital, agent.CapitalBalance, agent.TotalShares)

	before := agent.CapitalBalance
	agent.CapitalBalance = agent.CapitalBalance.Add(capital)
	agent.TotalShares = agent.TotalShares.Add(shares)
	agent.EnergyBalance = agent.EnergyBalance.Add(fuel)
	agent.BurnRatePerHour = burnRate
	agent.Status = model.AgentActive
	agent.Insolvent = false
	agent.DiedAt = nil
	agent.LastBurnAt = now

	inv := &model.Investment{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		UserID:    callerID,
		Principal: capital,
		Shares:    shares,
		Status:    model.InvestmentOpen,
		CreatedAt: now,
	}

	err = s.store.WithTx(ctx, func(st store.Store) error {
		if err := st.UpdateAgent(ctx, agent); err != nil {
			return err
		}
		if err := st.CreateInvestment(ctx, inv); err != nil {
			return err
		}
		if err := st.InsertTransaction(ctx, newTransaction(
			callerID, agent.ID, model.TxnAgentMint,
			capital, before, agent.CapitalBalance,
			fmt.Sprintf("resurrection: %s capital / %s fuel from %s USD", capital, fuel, amountUSD),
		)); err != nil {
			return err
		}
		return st.InsertEnergyLog(ctx, newEnergyLog(agent.ID, model.EnergyRecharge, fuel))
	})
	if err != nil {
		return nil, err
	}

	metrics.Resurrections.Inc()
	s.broadcast(Event{Type: "agent_resurrected", AgentID: agent.ID})
	slog.Info("agent resurrected",
		"agent", agent.ID,
		"capital_added", capital.String(),
		"fuel_added", fuel.String(),
	)
	return agent, nil
}
