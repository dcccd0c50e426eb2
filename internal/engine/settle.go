package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/metrics"
	"github.com/pvpai/agent-engine/internal/model"
	"github.com/pvpai/agent-engine/internal/pool"
	"github.com/pvpai/agent-engine/internal/store"
)

// SettleTrade closes a trade against the exchange-reported exit price and
// applies the fee waterfall: profits pay the performance fee (split evenly
// between creator and platform) and the remainder flows back into the
// pool; losses hit the pool in full. All effects — pool update, creator
// accrual, ledger entries, trade close — commit atomically.
//
// Settling an already-closed trade is a no-op returning the recorded
// result, since the periodic settle sweep may observe the same exchange
// fill twice. Lifecycle checks run after settlement, not before: a dying
// agent's last trade still settles into its pool.
func (s *Service) SettleTrade(ctx context.Context, tradeID string, exitPrice decimal.Decimal) (*pool.Settlement, error) {
	trade, err := s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(trade.AgentID)
	defer unlock()

	// Re-read under the lock: a concurrent sweep may have settled it.
	trade, err = s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status == model.TradeClosed {
		// Idempotent no-op: reconstruct the settlement from the stored
		// entry/exit marks. The waterfall is deterministic, so this equals
		// the originally applied result without touching any balance.
		st := pool.Waterfall(grossPnL(trade, *trade.ExitPrice), s.cfg.PerformanceFeePct)
		return &st, nil
	}

	agent, err := s.store.GetAgent(ctx, trade.AgentID)
	if err != nil {
		return nil, err
	}

	gross := grossPnL(trade, exitPrice)
	settlement := pool.Waterfall(gross, s.cfg.PerformanceFeePct)

	before := agent.CapitalBalance
	newCapital, insolvent := pool.ApplyPnL(agent.CapitalBalance, settlement.NetPnL)
	agent.CapitalBalance = newCapital
	agent.CreatorEarnings = agent.CreatorEarnings.Add(settlement.CreatorFee)
	if insolvent {
		// Pool clamped to zero. The agent is flagged and force-killed on
		// the next monitor sweep rather than mid-settlement.
		agent.Insolvent = true
	}

	now := time.Now().UTC()
	err = s.store.WithTx(ctx, func(st store.Store) error {
		if err := st.CloseTrade(ctx, trade.ID, exitPrice, settlement.NetPnL, now); err != nil {
			return err
		}
		if err := st.UpdateAgent(ctx, agent); err != nil {
			return err
		}
		if err := st.InsertTransaction(ctx, newTransaction(
			agent.OwnerID, agent.ID, model.TxnTradePnL,
			settlement.NetPnL, before, agent.CapitalBalance,
			fmt.Sprintf("trade %s settled: gross %s, net %s", trade.ID, gross, settlement.NetPnL),
		)); err != nil {
			return err
		}
		if settlement.PlatformFee.IsPositive() {
			if err := st.InsertTransaction(ctx, newTransaction(
				agent.OwnerID, agent.ID, model.TxnPerformanceFee,
				settlement.PlatformFee, decimal.Zero, settlement.PlatformFee,
				fmt.Sprintf("performance fee on trade %s (platform half)", trade.ID),
			)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "loss"
	if gross.IsPositive() {
		outcome = "profit"
	}
	metrics.TradesSettled.WithLabelValues(outcome).Inc()
	s.broadcast(Event{
		Type:    "trade_settled",
		AgentID: agent.ID,
		TradeID: trade.ID,
		Amount:  settlement.NetPnL.String(),
	})
	slog.Info("trade settled",
		"trade", trade.ID,
		"agent", agent.ID,
		"gross", gross.String(),
		"net", settlement.NetPnL.String(),
		"creator_fee", settlement.CreatorFee.String(),
		"platform_fee", settlement.PlatformFee.String(),
		"insolvent", insolvent,
	)
	return &settlement, nil
}
