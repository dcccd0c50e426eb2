// Package sweep runs the periodic monitor and settle jobs that drive the
// engine's time-based economics: fuel burn, death checks, trade triggers,
// settlement of exchange-reported fills, and payout retries.
//
// Every job is idempotent, so it can run from an external cron (the HTTP
// endpoints) and from the in-process tickers at the same time without
// double-applying effects.
package sweep

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/engine"
	"github.com/pvpai/agent-engine/internal/metrics"
	"github.com/pvpai/agent-engine/internal/model"
)

// Coordinator wires the engine to its periodic jobs.
type Coordinator struct {
	engine   *engine.Service
	signals  engine.SignalSource
	exchange engine.ExchangeFeed
	payouts  engine.PayoutSender
	secret   string

	// Overlap guards. A sweep that fires while the previous run of the same
	// job is still going is skipped, not queued.
	monitorMu sync.Mutex
	settleMu  sync.Mutex
	payoutMu  sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCoordinator creates a sweep coordinator. The secret authenticates
// HTTP-triggered sweeps; the ports are the same adapters the engine uses.
func NewCoordinator(svc *engine.Service, signals engine.SignalSource, exchange engine.ExchangeFeed, payouts engine.PayoutSender, secret string) *Coordinator {
	return &Coordinator{
		engine:   svc,
		signals:  signals,
		exchange: exchange,
		payouts:  payouts,
		secret:   secret,
		stopCh:   make(chan struct{}),
	}
}

// MonitorResult summarizes one monitor sweep.
type MonitorResult struct {
	AgentsChecked int `json:"agents_checked"`
	Burned        int `json:"burned"`
	Died          int `json:"died"`
	TradesOpened  int `json:"trades_opened"`
	Errors        int `json:"errors"`
}

// Monitor walks every active agent: escalates insolvency to death, applies
// fuel burn for the hours elapsed since the last burn, and asks the signal
// source whether to open a trade. Per-agent failures are isolated so one bad
// agent cannot stall the rest of the fleet.
func (c *Coordinator) Monitor(ctx context.Context) (*MonitorResult, error) {
	if !c.monitorMu.TryLock() {
		slog.Warn("monitor sweep skipped, previous run still in progress")
		return &MonitorResult{}, nil
	}
	defer c.monitorMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("monitor").Observe(time.Since(start).Seconds())
	}()

	agents, err := c.engine.Store().ListAgentsByStatus(ctx, model.AgentActive)
	if err != nil {
		return nil, err
	}
	metrics.ActiveAgents.Set(float64(len(agents)))

	result := &MonitorResult{AgentsChecked: len(agents)}
	for i := range agents {
		agent := &agents[i]
		if err := c.monitorAgent(ctx, agent, result); err != nil {
			result.Errors++
			metrics.SweepAgentErrors.WithLabelValues("monitor").Inc()
			slog.Error("monitor sweep: agent failed", "agent", agent.ID, "err", err)
		}
	}

	slog.Info("monitor sweep complete",
		"checked", result.AgentsChecked,
		"burned", result.Burned,
		"died", result.Died,
		"trades_opened", result.TradesOpened,
		"errors", result.Errors,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

func (c *Coordinator) monitorAgent(ctx context.Context, agent *model.Agent, result *MonitorResult) error {
	// Insolvent pools are killed before anything else runs for the agent.
	if agent.Insolvent {
		if err := c.engine.ForceKill(ctx, agent.ID, "insolvency"); err != nil {
			return err
		}
		result.Died++
		return nil
	}

	// Burn before evaluating the trigger: an agent that dies in this sweep
	// must not open a position first.
	elapsed := decimal.NewFromFloat(time.Since(agent.LastBurnAt).Hours())
	if elapsed.IsPositive() {
		burn, err := c.engine.BurnEnergy(ctx, agent.ID, elapsed)
		if err != nil {
			return err
		}
		result.Burned++
		if burn.Died {
			result.Died++
			return nil
		}
	}

	decision, err := c.signals.Evaluate(ctx, agent)
	if err != nil {
		return err
	}
	if !decision.Open {
		return nil
	}

	_, err = c.engine.OpenTrade(ctx, engine.OpenTradeParams{
		AgentID:       agent.ID,
		Direction:     decision.Direction,
		TriggerReason: decision.Reason,
	})
	switch {
	case err == nil:
		result.TradesOpened++
		return nil
	case errors.Is(err, engine.ErrPositionAlreadyOpen),
		errors.Is(err, engine.ErrInsufficientCapital),
		errors.Is(err, engine.ErrInsufficientEnergy):
		// Expected outcomes for individual agents, not sweep errors.
		return nil
	default:
		return err
	}
}

// SettleResult summarizes one settle sweep.
type SettleResult struct {
	Reported int `json:"reported"`
	Settled  int `json:"settled"`
	Errors   int `json:"errors"`
}

// Settle pulls closed positions from the exchange feed and settles each one.
// SettleTrade is idempotent, so a fill observed by two overlapping sweeps is
// applied exactly once.
func (c *Coordinator) Settle(ctx context.Context) (*SettleResult, error) {
	if !c.settleMu.TryLock() {
		slog.Warn("settle sweep skipped, previous run still in progress")
		return &SettleResult{}, nil
	}
	defer c.settleMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("settle").Observe(time.Since(start).Seconds())
	}()

	closed, err := c.exchange.ClosedPositions(ctx)
	if err != nil {
		return nil, err
	}

	result := &SettleResult{Reported: len(closed)}
	for _, pos := range closed {
		if _, err := c.engine.SettleTrade(ctx, pos.TradeID, pos.ExitPrice); err != nil {
			result.Errors++
			metrics.SweepAgentErrors.WithLabelValues("settle").Inc()
			slog.Error("settle sweep: trade failed", "trade", pos.TradeID, "err", err)
			continue
		}
		result.Settled++
	}

	slog.Info("settle sweep complete",
		"reported", result.Reported,
		"settled", result.Settled,
		"errors", result.Errors,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// RetryPayouts re-attempts pending on-chain payouts. The share accounting
// already happened when the payout intent was recorded, so a retry only
// sends money and flips the status.
func (c *Coordinator) RetryPayouts(ctx context.Context) error {
	if !c.payoutMu.TryLock() {
		return nil
	}
	defer c.payoutMu.Unlock()

	pending, err := c.engine.Store().ListPayoutsByStatus(ctx, model.PayoutPending)
	if err != nil {
		return err
	}

	for i := range pending {
		p := &pending[i]
		if err := c.payouts.SendPayout(ctx, p); err != nil {
			slog.Warn("payout retry failed", "payout", p.ID, "err", err)
			continue
		}
		now := time.Now().UTC()
		if err := c.engine.Store().UpdatePayoutStatus(ctx, p.ID, model.PayoutSent, &now); err != nil {
			slog.Error("payout sent but status update failed", "payout", p.ID, "err", err)
		}
	}
	return nil
}

// Start launches in-process tickers for any interval that is non-zero.
// Deployments driven by an external cron leave both intervals at zero and
// call the HTTP endpoints instead.
func (c *Coordinator) Start(monitorEvery, settleEvery time.Duration) {
	if monitorEvery > 0 {
		c.wg.Add(1)
		go c.loop("monitor", monitorEvery, func(ctx context.Context) error {
			_, err := c.Monitor(ctx)
			return err
		})
	}
	if settleEvery > 0 {
		c.wg.Add(1)
		go c.loop("settle", settleEvery, func(ctx context.Context) error {
			if err := c.RetryPayouts(ctx); err != nil {
				slog.Error("payout retry pass failed", "err", err)
			}
			_, err := c.Settle(ctx)
			return err
		})
	}
}

// Stop halts the tickers and waits for in-flight sweeps to finish.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Coordinator) loop(name string, every time.Duration, run func(context.Context) error) {
	defer c.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	slog.Info("sweep ticker started", "job", name, "interval", every)
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			if err := run(ctx); err != nil {
				slog.Error("sweep failed", "job", name, "err", err)
			}
			cancel()
		case <-c.stopCh:
			slog.Info("sweep ticker stopped", "job", name)
			return
		}
	}
}

// --- HTTP surface ---

// RequireSecret authenticates scheduler calls with a constant-time bearer
// token comparison.
func (c *Coordinator) RequireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if c.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(c.secret)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleMonitor handles POST /internal/sweeps/monitor
func (c *Coordinator) HandleMonitor(w http.ResponseWriter, r *http.Request) {
	result, err := c.Monitor(r.Context())
	if err != nil {
		writeSweepError(w, err)
		return
	}
	writeSweepJSON(w, result)
}

// HandleSettle handles POST /internal/sweeps/settle
func (c *Coordinator) HandleSettle(w http.ResponseWriter, r *http.Request) {
	if err := c.RetryPayouts(r.Context()); err != nil {
		slog.Error("payout retry pass failed", "err", err)
	}
	result, err := c.Settle(r.Context())
	if err != nil {
		writeSweepError(w, err)
		return
	}
	writeSweepJSON(w, result)
}

func writeSweepJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func writeSweepError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
