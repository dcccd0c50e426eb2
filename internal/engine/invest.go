package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/metrics"
	"github.com/pvpai/agent-engine/internal/model"
	"github.com/pvpai/agent-engine/internal/pool"
	"github.com/pvpai/agent-engine/internal/store"
)

// Invest adds a third-party contribution to an active agent's capital pool.
// Shares are issued at the current share value, so the new investor's claim
// is exactly proportional to the cash brought in.
func (s *Service) Invest(ctx context.Context, agentID, userID string, amountUSD decimal.Decimal) (*model.Investment, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if amountUSD.LessThan(s.cfg.MinInvestmentUSD) {
		return nil, fmt.Errorf("%w: investment requires at least %s USD", ErrBelowMinimum, s.cfg.MinInvestmentUSD)
	}

	unlock := s.locks.acquire(agentID)
	defer unlock()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != model.AgentActive {
		return nil, fmt.Errorf("%w: agent is %s", ErrAgentNotActive, agent.Status)
	}

	now := time.Now().UTC()
	shares := pool.SharesForDeposit(amountUSD, agent.CapitalBalance, agent.TotalShares)

	before := agent.CapitalBalance
	agent.CapitalBalance = agent.CapitalBalance.Add(amountUSD)
	agent.TotalShares = agent.TotalShares.Add(shares)

	inv := &model.Investment{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		UserID:    userID,
		Principal: amountUSD,
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
		return st.InsertTransaction(ctx, newTransaction(
			userID, agentID, model.TxnInvestment,
			amountUSD, before, agent.CapitalBalance,
			fmt.Sprintf("investment: %s USD for %s shares", amountUSD, shares),
		))
	})
	if err != nil {
		return nil, err
	}

	metrics.Investments.Inc()
	slog.Info("investment accepted",
		"agent", agentID,
		"user", userID,
		"amount", amountUSD.String(),
		"shares", shares.String(),
	)
	return inv, nil
}

// WithdrawResult is returned from a successful withdrawal.
type WithdrawResult struct {
	NetAmount decimal.Decimal `json:"net_amount"`
	FeeAmount decimal.Decimal `json:"fee_amount"`
}

// Withdraw liquidates an investor's entire position at the current share
// value, nets out the withdrawal fee, and burns the shares. Works on any
// agent state — a dead agent's frozen pool exists precisely so investors
// can exit.
//
// When skipBalanceCredit is set the cash leaves on-chain instead of as an
// internal balance credit: a pending payout intent is recorded in the same
// transaction that burns the shares, then the external transfer is
// attempted once after commit. A failed transfer stays pending for the
// payout retry loop — the share accounting never runs twice.
func (s *Service) Withdraw(ctx context.Context, investmentID, userID string, skipBalanceCredit bool) (*WithdrawResult, error) {
	inv, err := s.store.GetInvestment(ctx, investmentID)
	if err != nil {
		return nil, err
	}
	if inv.UserID != userID {
		return nil, ErrNotOwner
	}
	if inv.Status == model.InvestmentWithdrawn {
		return nil, ErrAlreadyWithdrawn
	}

	unlock := s.locks.acquire(inv.AgentID)
	defer unlock()

	// Re-read under the lock: status may have changed while we waited.
	inv, err = s.store.GetInvestment(ctx, investmentID)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.InvestmentWithdrawn {
		return nil, ErrAlreadyWithdrawn
	}

	agent, err := s.store.GetAgent(ctx, inv.AgentID)
	if err != nil {
		return nil, err
	}

	claimable, err := pool.Claimable(inv.Shares, agent.TotalShares, agent.CapitalBalance)
	if err != nil {
		// Shares outstanding that the pool doesn't know about is an
		// invariant violation, not a user error.
		return nil, fmt.Errorf("withdraw %s: %w", investmentID, err)
	}
	net, fee := pool.WithdrawalSplit(claimable, s.cfg.WithdrawalFeePct)

	now := time.Now().UTC()
	before := agent.CapitalBalance
	agent.CapitalBalance = agent.CapitalBalance.Sub(claimable)
	agent.TotalShares = agent.TotalShares.Sub(inv.Shares)

	var payout *model.PendingPayout
	if skipBalanceCredit {
		payout = &model.PendingPayout{
			ID:           uuid.New().String(),
			InvestmentID: inv.ID,
			UserID:       userID,
			AmountUSD:    net,
			Status:       model.PayoutPending,
			CreatedAt:    now,
		}
	}

	err = s.store.WithTx(ctx, func(st store.Store) error {
		if err := st.UpdateAgent(ctx, agent); err != nil {
			return err
		}
		if err := st.MarkInvestmentWithdrawn(ctx, inv.ID, now); err != nil {
			return err
		}
		if err := st.InsertTransaction(ctx, newTransaction(
			userID, inv.AgentID, model.TxnWithdrawal,
			claimable.Neg(), before, agent.CapitalBalance,
			fmt.Sprintf("withdrawal: %s shares for %s USD (net %s)", inv.Shares, claimable, net),
		)); err != nil {
			return err
		}
		if fee.IsPositive() {
			if err := st.InsertTransaction(ctx, newTransaction(
				userID, inv.AgentID, model.TxnWithdrawalFee,
				fee, decimal.Zero, fee,
				"withdrawal fee (platform revenue)",
			)); err != nil {
				return err
			}
		}
		if payout != nil {
			return st.CreatePendingPayout(ctx, payout)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// External payout happens outside the transaction: intent is durable,
	// the transfer is retryable.
	if payout != nil && s.payouts != nil {
		if err := s.payouts.SendPayout(ctx, payout); err != nil {
			slog.Warn("payout send failed, left pending", "payout", payout.ID, "err", err)
		} else {
			sentAt := time.Now().UTC()
			if err := s.store.UpdatePayoutStatus(ctx, payout.ID, model.PayoutSent, &sentAt); err != nil {
				slog.Error("payout sent but status update failed", "payout", payout.ID, "err", err)
			}
		}
	}

	metrics.Withdrawals.Inc()
	slog.Info("withdrawal processed",
		"agent", inv.AgentID,
		"user", userID,
		"claimable", claimable.String(),
		"net", net.String(),
		"fee", fee.String(),
		"onchain", skipBalanceCredit,
	)
	return &WithdrawResult{NetAmount: net, FeeAmount: fee}, nil
}

// ClaimEarnings drains the agent's accrued creator fees to the creator.
func (s *Service) ClaimEarnings(ctx context.Context, agentID, callerID string) (decimal.Decimal, error) {
	unlock := s.locks.acquire(agentID)
	defer unlock()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return decimal.Zero, err
	}
	if agent.OwnerID != callerID {
		return decimal.Zero, ErrNotOwner
	}
	if !agent.CreatorEarnings.IsPositive() {
		return decimal.Zero, ErrNothingToClaim
	}

	claimed := agent.CreatorEarnings
	agent.CreatorEarnings = decimal.Zero

	err = s.store.WithTx(ctx, func(st store.Store) error {
		if err := st.UpdateAgent(ctx, agent); err != nil {
			return err
		}
		return st.InsertTransaction(ctx, newTransaction(
			callerID, agentID, model.TxnCreatorClaim,
			claimed, claimed, decimal.Zero,
			"creator earnings claim",
		))
	})
	if err != nil {
		return decimal.Zero, err
	}

	slog.Info("creator earnings claimed", "agent", agentID, "amount", claimed.String())
	return claimed, nil
}

// Positions computes an investor's live claims across all their open
// investments, marked at each pool's current share value.
func (s *Service) Positions(ctx context.Context, userID string) ([]model.InvestorPosition, error) {
	investments, err := s.store.ListInvestmentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var positions []model.InvestorPosition
	for _, inv := range investments {
		if inv.Status != model.InvestmentOpen {
			continue
		}
		agent, err := s.store.GetAgent(ctx, inv.AgentID)
		if err != nil {
			return nil, err
		}

		value, err := pool.Claimable(inv.Shares, agent.TotalShares, agent.CapitalBalance)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", inv.ID, err)
		}
		positions = append(positions, model.InvestorPosition{
			AgentID:       inv.AgentID,
			InvestmentID:  inv.ID,
			Principal:     inv.Principal,
			Shares:        inv.Shares,
			ShareOfPool:   inv.Shares.Div(agent.TotalShares).Round(pool.MoneyScale),
			CurrentValue:  value,
			UnrealizedPnL: value.Sub(inv.Principal),
		})
	}
	return positions, nil
}
