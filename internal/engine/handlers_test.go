package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pvpai/agent-engine/internal/engine"
)

// newTestRouter mounts the engine handlers the way cmd/server does.
func newTestRouter(t *testing.T) (*engine.Service, chi.Router) {
	t.Helper()
	svc, _, _, _ := newTestEnv(t)

	r := chi.NewRouter()
	r.Get("/api/v1/agents", svc.HandleListAgents)
	r.Post("/api/v1/agents", svc.HandleMint)
	r.Get("/api/v1/agents/{agentID}", svc.HandleGetAgent)
	r.Post("/api/v1/agents/{agentID}/invest", svc.HandleInvest)
	r.Post("/api/v1/investments/{investmentID}/withdraw", svc.HandleWithdraw)
	r.Post("/api/v1/agents/{agentID}/pause", svc.HandlePause)
	r.Get("/api/v1/agents/{agentID}/ledger", svc.HandleAgentLedger)
	r.Post("/internal/trades", svc.HandleOpenTrade)
	r.Post("/internal/trades/{tradeID}/settle", svc.HandleSettleTrade)
	return svc, r
}

func doJSON(t *testing.T, router chi.Router, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleMint_CreatesAgent(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/agents", "creator1", map[string]any{
		"name":             "alpha",
		"tier":             "basic",
		"direction_bias":   "long",
		"max_position_pct": "0.5",
		"leverage":         10,
		"amount_usd":       "1000",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var agent struct {
		ID             string `json:"id"`
		OwnerID        string `json:"owner_id"`
		Status         string `json:"status"`
		CapitalBalance string `json:"capital_balance"`
	}
	json.Unmarshal(w.Body.Bytes(), &agent)
	if agent.OwnerID != "creator1" {
		t.Errorf("owner should come from the identity header, got %q", agent.OwnerID)
	}
	if agent.Status != "active" {
		t.Errorf("status = %s, want active", agent.Status)
	}
}

func TestHandleMint_BelowMinimum(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/agents", "creator1", map[string]any{
		"name":             "alpha",
		"tier":             "basic",
		"direction_bias":   "long",
		"max_position_pct": "0.5",
		"leverage":         10,
		"amount_usd":       "5",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "BelowMinimum" {
		t.Errorf("code = %q, want BelowMinimum", body["code"])
	}
}

func TestHandleGetAgent_ViewFields(t *testing.T) {
	svc, router := newTestRouter(t)
	agent := mintAgent(t, svc)

	w := doJSON(t, router, "GET", "/api/v1/agents/"+agent.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var view struct {
		ShareValue    string   `json:"share_value"`
		LifespanHours *float64 `json:"lifespan_hours"`
	}
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.ShareValue != "1" {
		t.Errorf("share value = %q, want 1", view.ShareValue)
	}
	// 30000 fuel at 10/hour.
	if view.LifespanHours == nil || *view.LifespanHours != 3000 {
		t.Errorf("lifespan = %v, want 3000", view.LifespanHours)
	}
}

func TestHandleGetAgent_NotFound(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/v1/agents/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandlePause_ForeignCallerForbidden(t *testing.T) {
	svc, router := newTestRouter(t)
	agent := mintAgent(t, svc)

	w := doJSON(t, router, "POST", "/api/v1/agents/"+agent.ID+"/pause", "stranger", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestHandleOpenAndSettle_RoundTrip(t *testing.T) {
	svc, router := newTestRouter(t)
	agent := mintAgent(t, svc)

	w := doJSON(t, router, "POST", "/internal/trades", "", map[string]any{
		"agent_id":       agent.ID,
		"trigger_reason": "manual",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var trade struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &trade)

	// Double open conflicts.
	w = doJSON(t, router, "POST", "/internal/trades", "", map[string]any{"agent_id": agent.ID})
	if w.Code != http.StatusConflict {
		t.Errorf("double open: expected 409, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/internal/trades/"+trade.ID+"/settle", "", map[string]any{
		"exit_price": "101",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("settle: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var settlement struct {
		NetPnL string `json:"net_pnl"`
	}
	json.Unmarshal(w.Body.Bytes(), &settlement)
	if settlement.NetPnL != "28" {
		t.Errorf("net pnl = %q, want 28", settlement.NetPnL)
	}

	// Replay returns the same result with 200.
	w = doJSON(t, router, "POST", "/internal/trades/"+trade.ID+"/settle", "", map[string]any{
		"exit_price": "140",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &settlement)
	if settlement.NetPnL != "28" {
		t.Errorf("replayed net pnl = %q, want 28", settlement.NetPnL)
	}
}

func TestHandleSettle_RejectsBadExitPrice(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/internal/trades/any/settle", "", map[string]any{
		"exit_price": "0",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleWithdraw_EmptyBodyAllowed(t *testing.T) {
	svc, router := newTestRouter(t)
	agent := mintAgent(t, svc)

	inv, err := svc.Invest(context.Background(), agent.ID, "investor1", d(300))
	if err != nil {
		t.Fatalf("invest: %v", err)
	}

	w := doJSON(t, router, "POST", "/api/v1/investments/"+inv.ID+"/withdraw", "investor1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result struct {
		NetAmount string `json:"net_amount"`
	}
	json.Unmarshal(w.Body.Bytes(), &result)
	if result.NetAmount != "297" {
		t.Errorf("net = %q, want 297", result.NetAmount)
	}
}

func TestHandleLedger_ReturnsEntries(t *testing.T) {
	svc, router := newTestRouter(t)
	agent := mintAgent(t, svc)

	w := doJSON(t, router, "GET", "/api/v1/agents/"+agent.ID+"/ledger", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var entries []map[string]any
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 1 {
		t.Errorf("expected 1 mint entry, got %d", len(entries))
	}
}
