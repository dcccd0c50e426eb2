package engine

import (
	"context"
	"errors"
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

// OpenTradeParams are the inputs for opening a position.
// Direction defaults to the agent's bias and Leverage to the agent's risk
// rules when left zero-valued.
type OpenTradeParams struct {
	AgentID       string `json:"agent_id"`
	Direction     string `json:"direction"`
	Leverage      int    `json:"leverage"`
	TriggerReason string `json:"trigger_reason"`
}

// OpenTrade opens a leveraged position for an agent. Guards: the agent must
// be active, clear the minimum-to-live fuel threshold, and have no open
// position. Size is capital × max_position_pct, capped at the maximum trade
// size; a pool too small to fund the minimum trade is rejected rather than
// rounded up.
//
// No capital is debited here — the pool is the trading principal itself,
// and the exchange custodies margin.
func (s *Service) OpenTrade(ctx context.Context, p OpenTradeParams) (*model.Trade, error) {
	direction := p.Direction
	if direction != "" && direction != model.DirectionLong && direction != model.DirectionShort {
		return nil, fmt.Errorf("%w: direction must be long or short", ErrInvalidInput)
	}

	unlock := s.locks.acquire(p.AgentID)
	defer unlock()

	agent, err := s.store.GetAgent(ctx, p.AgentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != model.AgentActive {
		return nil, fmt.Errorf("%w: agent is %s", ErrAgentNotActive, agent.Status)
	}
	if !energy.CanTrade(agent.EnergyBalance, s.cfg.MinEnergyToLive) {
		return nil, fmt.Errorf("%w: %s fuel remaining, %s required",
			ErrInsufficientEnergy, agent.EnergyBalance, s.cfg.MinEnergyToLive)
	}

	if _, err := s.store.GetOpenTradeByAgent(ctx, p.AgentID); err == nil {
		return nil, ErrPositionAlreadyOpen
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	size := agent.CapitalBalance.Mul(agent.MaxPositionPct).Round(pool.MoneyScale)
	if size.GreaterThan(s.cfg.MaxTradeSizeUSD) {
		size = s.cfg.MaxTradeSizeUSD
	}
	if size.LessThan(s.cfg.MinTradeSizeUSD) {
		return nil, fmt.Errorf("%w: position size %s below minimum %s",
			ErrInsufficientCapital, size, s.cfg.MinTradeSizeUSD)
	}

	if direction == "" {
		direction = agent.DirectionBias
	}
	leverage := p.Leverage
	if leverage == 0 {
		leverage = agent.Leverage
	}

	entry, err := s.exchange.MarkPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("mark price: %w", err)
	}

	trade := &model.Trade{
		ID:            uuid.New().String(),
		AgentID:       p.AgentID,
		Direction:     direction,
		SizeUSD:       size,
		Leverage:      leverage,
		EntryPrice:    entry,
		TriggerReason: p.TriggerReason,
		Status:        model.TradeOpen,
		OpenedAt:      time.Now().UTC(),
	}

	if err := s.store.CreateTrade(ctx, trade); err != nil {
		return nil, err
	}

	metrics.TradesOpened.WithLabelValues(direction).Inc()
	s.broadcast(Event{
		Type:      "trade_opened",
		AgentID:   p.AgentID,
		TradeID:   trade.ID,
		Direction: direction,
		Amount:    size.String(),
	})
	slog.Info("trade opened",
		"trade", trade.ID,
		"agent", p.AgentID,
		"direction", direction,
		"size", size.String(),
		"leverage", leverage,
		"entry", entry.String(),
		"reason", p.TriggerReason,
	)
	return trade, nil
}

// grossPnL computes the realized P&L of a closed position from entry and
// exit marks: notional × leverage × price move, sign flipped for shorts.
func grossPnL(t *model.Trade, exitPrice decimal.Decimal) decimal.Decimal {
	if t.EntryPrice.IsZero() {
		return decimal.Zero
	}
	move := exitPrice.Sub(t.EntryPrice).Div(t.EntryPrice)
	if t.Direction == model.DirectionShort {
		move = move.Neg()
	}
	return t.SizeUSD.Mul(decimal.NewFromInt(int64(t.Leverage))).Mul(move).Round(pool.MoneyScale)
}
