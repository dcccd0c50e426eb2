package engine

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/energy"
	"github.com/pvpai/agent-engine/internal/model"
	"github.com/pvpai/agent-engine/internal/pool"
)

// callerID extracts the authenticated user id supplied by the identity
// layer in front of this service. Authentication itself is external.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// AgentView is the read model for a single agent: the row plus derived
// economics (share value, estimated lifespan, open position).
type AgentView struct {
	model.Agent
	ShareValue    decimal.Decimal `json:"share_value"`
	LifespanHours *float64        `json:"lifespan_hours"` // null = unbounded
	OpenTrade     *model.Trade    `json:"open_trade,omitempty"`
}

func (s *Service) agentView(r *http.Request, agent *model.Agent) AgentView {
	view := AgentView{
		Agent:      *agent,
		ShareValue: pool.ShareValue(agent.CapitalBalance, agent.TotalShares),
	}
	if hours := energy.EstimateLifespanHours(agent.EnergyBalance, agent.BurnRatePerHour); !math.IsInf(hours, 1) {
		view.LifespanHours = &hours
	}
	if trade, err := s.store.GetOpenTradeByAgent(r.Context(), agent.ID); err == nil {
		view.OpenTrade = trade
	}
	return view
}

// --- Agent lifecycle ---

// HandleMint handles POST /api/v1/agents
func (s *Service) HandleMint(w http.ResponseWriter, r *http.Request) {
	var p MintParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	p.OwnerID = callerID(r)

	agent, err := s.Mint(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

// HandleGetAgent handles GET /api/v1/agents/{agentID}
func (s *Service) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.agentView(r, agent))
}

// HandleListAgents handles GET /api/v1/agents
// Optionally filtered by ?status=<status>.
func (s *Service) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	var (
		agents []model.Agent
		err    error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		agents, err = s.store.ListAgentsByStatus(r.Context(), status)
	} else {
		agents, err = s.store.ListAgents(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if agents == nil {
		agents = []model.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

// HandlePause handles POST /api/v1/agents/{agentID}/pause
func (s *Service) HandlePause(w http.ResponseWriter, r *http.Request) {
	agent, err := s.Pause(r.Context(), chi.URLParam(r, "agentID"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// HandleResume handles POST /api/v1/agents/{agentID}/resume
func (s *Service) HandleResume(w http.ResponseWriter, r *http.Request) {
	agent, err := s.Resume(r.Context(), chi.URLParam(r, "agentID"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// HandleClose handles POST /api/v1/agents/{agentID}/close
func (s *Service) HandleClose(w http.ResponseWriter, r *http.Request) {
	agent, err := s.CloseAgent(r.Context(), chi.URLParam(r, "agentID"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type amountRequest struct {
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// HandleResurrect handles POST /api/v1/agents/{agentID}/resurrect
func (s *Service) HandleResurrect(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	agent, err := s.Resurrect(r.Context(), chi.URLParam(r, "agentID"), callerID(r), req.AmountUSD)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// HandleRecharge handles POST /api/v1/agents/{agentID}/recharge
func (s *Service) HandleRecharge(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	agent, err := s.Recharge(r.Context(), chi.URLParam(r, "agentID"), callerID(r), req.AmountUSD)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// HandleClaim handles POST /api/v1/agents/{agentID}/claim
func (s *Service) HandleClaim(w http.ResponseWriter, r *http.Request) {
	claimed, err := s.ClaimEarnings(r.Context(), chi.URLParam(r, "agentID"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"claimed": claimed})
}

// --- Investments ---

// HandleInvest handles POST /api/v1/agents/{agentID}/invest
func (s *Service) HandleInvest(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	inv, err := s.Invest(r.Context(), chi.URLParam(r, "agentID"), callerID(r), req.AmountUSD)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// HandleWithdraw handles POST /api/v1/investments/{investmentID}/withdraw
func (s *Service) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SkipBalanceCredit bool `json:"skip_balance_credit"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
	}

	result, err := s.Withdraw(r.Context(), chi.URLParam(r, "investmentID"), callerID(r), req.SkipBalanceCredit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandlePositions handles GET /api/v1/positions
func (s *Service) HandlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.Positions(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if positions == nil {
		positions = []model.InvestorPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// --- Trades ---

// HandleOpenTrade handles POST /api/v1/trades
// Used by the scheduler (bearer secret) and by manual trigger tooling.
func (s *Service) HandleOpenTrade(w http.ResponseWriter, r *http.Request) {
	var p OpenTradeParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if p.AgentID == "" {
		writeBadRequest(w, "agent_id is required")
		return
	}

	trade, err := s.OpenTrade(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

// HandleSettleTrade handles POST /api/v1/trades/{tradeID}/settle
func (s *Service) HandleSettleTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExitPrice decimal.Decimal `json:"exit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.ExitPrice.LessThanOrEqual(decimal.Zero) {
		writeBadRequest(w, "exit_price must be positive")
		return
	}

	settlement, err := s.SettleTrade(r.Context(), chi.URLParam(r, "tradeID"), req.ExitPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

// --- History reads ---

// HandleAgentLedger handles GET /api/v1/agents/{agentID}/ledger
func (s *Service) HandleAgentLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.GetTransactionsByAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleAgentEnergyLog handles GET /api/v1/agents/{agentID}/energy
func (s *Service) HandleAgentEnergyLog(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.GetEnergyLogsByAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []model.EnergyLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an engine error to its stable code and HTTP status.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(map[string]string{
		"code":  errorCode(err),
		"error": err.Error(),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  "InvalidInput",
		"error": message,
	})
}
