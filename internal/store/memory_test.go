package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/model"
	"github.com/pvpai/agent-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func seedAgent(t *testing.T, ms *store.MemoryStore, id, status string) *model.Agent {
	t.Helper()
	agent := &model.Agent{
		ID:              id,
		OwnerID:         "owner1",
		Name:            "agent-" + id,
		Status:          status,
		Tier:            model.TierBasic,
		DirectionBias:   model.DirectionLong,
		MaxPositionPct:  d(0.5),
		Leverage:        10,
		CapitalBalance:  d(700),
		TotalShares:     d(700),
		EnergyBalance:   d(30000),
		BurnRatePerHour: d(10),
		LastBurnAt:      time.Now().UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := ms.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return agent
}

func TestMemoryStore_AgentRoundTrip(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedAgent(t, ms, "a1", model.AgentActive)

	got, err := ms.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CapitalBalance.Equal(d(700)) {
		t.Errorf("capital = %s, want 700", got.CapitalBalance)
	}

	// Reads return copies: mutating the result must not leak into the store.
	got.CapitalBalance = d(9999)
	again, _ := ms.GetAgent(ctx, "a1")
	if !again.CapitalBalance.Equal(d(700)) {
		t.Error("GetAgent leaked a mutable reference")
	}

	got.ID = "a1"
	got.CapitalBalance = d(500)
	if err := ms.UpdateAgent(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := ms.GetAgent(ctx, "a1")
	if !updated.CapitalBalance.Equal(d(500)) {
		t.Errorf("capital after update = %s, want 500", updated.CapitalBalance)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.GetAgent(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetAgent: got %v, want ErrNotFound", err)
	}
	if _, err := ms.GetInvestment(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetInvestment: got %v, want ErrNotFound", err)
	}
	if _, err := ms.GetTrade(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetTrade: got %v, want ErrNotFound", err)
	}
	if _, err := ms.GetOpenTradeByAgent(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetOpenTradeByAgent: got %v, want ErrNotFound", err)
	}
	if err := ms.UpdateAgent(ctx, &model.Agent{ID: "ghost"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateAgent: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListAgentsByStatus(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedAgent(t, ms, "a1", model.AgentActive)
	seedAgent(t, ms, "a2", model.AgentActive)
	seedAgent(t, ms, "a3", model.AgentDead)

	active, err := ms.ListAgentsByStatus(ctx, model.AgentActive)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active agents = %d, want 2", len(active))
	}

	all, _ := ms.ListAgents(ctx)
	if len(all) != 3 {
		t.Errorf("all agents = %d, want 3", len(all))
	}
}

func TestMemoryStore_OpenTradeLookup(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedAgent(t, ms, "a1", model.AgentActive)

	trade := &model.Trade{
		ID:         "t1",
		AgentID:    "a1",
		Direction:  model.DirectionLong,
		SizeUSD:    d(350),
		Leverage:   10,
		EntryPrice: d(100),
		Status:     model.TradeOpen,
		OpenedAt:   time.Now().UTC(),
	}
	if err := ms.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("create trade: %v", err)
	}

	got, err := ms.GetOpenTradeByAgent(ctx, "a1")
	if err != nil || got.ID != "t1" {
		t.Fatalf("open trade lookup: %v", err)
	}

	now := time.Now().UTC()
	if err := ms.CloseTrade(ctx, "t1", d(101), d(28), now); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Closed trades no longer match the open lookup.
	if _, err := ms.GetOpenTradeByAgent(ctx, "a1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("closed trade still returned as open: %v", err)
	}
	closed, _ := ms.GetTrade(ctx, "t1")
	if closed.ExitPrice == nil || !closed.ExitPrice.Equal(d(101)) {
		t.Errorf("exit price = %v, want 101", closed.ExitPrice)
	}
	if closed.RealizedPnL == nil || !closed.RealizedPnL.Equal(d(28)) {
		t.Errorf("realized pnl = %v, want 28", closed.RealizedPnL)
	}
}

func TestMemoryStore_LedgerAppendOnly(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	for i, amount := range []float64{100, -40, 25} {
		txn := &model.Transaction{
			ID:        "txn" + string(rune('a'+i)),
			UserID:    "u1",
			AgentID:   "a1",
			Type:      model.TxnTradePnL,
			Amount:    d(amount),
			CreatedAt: time.Now().UTC(),
		}
		if err := ms.InsertTransaction(ctx, txn); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	byAgent, _ := ms.GetTransactionsByAgent(ctx, "a1")
	if len(byAgent) != 3 {
		t.Errorf("entries by agent = %d, want 3", len(byAgent))
	}
	// Insertion order is preserved.
	if !byAgent[0].Amount.Equal(d(100)) || !byAgent[2].Amount.Equal(d(25)) {
		t.Errorf("ledger order changed: %+v", byAgent)
	}

	byUser, _ := ms.GetTransactionsByUser(ctx, "u1")
	if len(byUser) != 3 {
		t.Errorf("entries by user = %d, want 3", len(byUser))
	}
}

func TestMemoryStore_PayoutLifecycle(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	p := &model.PendingPayout{
		ID:           "p1",
		InvestmentID: "i1",
		UserID:       "u1",
		AmountUSD:    d(297),
		Status:       model.PayoutPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := ms.CreatePendingPayout(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, _ := ms.ListPayoutsByStatus(ctx, model.PayoutPending)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	now := time.Now().UTC()
	if err := ms.UpdatePayoutStatus(ctx, "p1", model.PayoutSent, &now); err != nil {
		t.Fatalf("update: %v", err)
	}
	sent, _ := ms.ListPayoutsByStatus(ctx, model.PayoutSent)
	if len(sent) != 1 || sent[0].SentAt == nil {
		t.Errorf("sent = %+v", sent)
	}
}

func TestMemoryStore_WithTxRunsInline(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedAgent(t, ms, "a1", model.AgentActive)

	err := ms.WithTx(ctx, func(st store.Store) error {
		agent, err := st.GetAgent(ctx, "a1")
		if err != nil {
			return err
		}
		agent.CapitalBalance = d(123)
		return st.UpdateAgent(ctx, agent)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, _ := ms.GetAgent(ctx, "a1")
	if !got.CapitalBalance.Equal(d(123)) {
		t.Errorf("capital = %s, want 123", got.CapitalBalance)
	}
}
