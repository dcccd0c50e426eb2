// Package external provides HTTP adapters for the engine's outbound ports:
// the AI signal evaluator, the exchange connectivity layer, and the on-chain
// payout service. Each adapter has a development fallback used when the
// corresponding URL is not configured.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/engine"
	"github.com/pvpai/agent-engine/internal/model"
)

const requestTimeout = 10 * time.Second

// --- Signal evaluator ---

// HTTPSignalSource asks the AI evaluator service whether an agent's strategy
// rules fire against current market conditions.
type HTTPSignalSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSignalSource(baseURL string) *HTTPSignalSource {
	return &HTTPSignalSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (s *HTTPSignalSource) Evaluate(ctx context.Context, agent *model.Agent) (engine.TriggerDecision, error) {
	payload, err := json.Marshal(map[string]any{
		"agent_id":       agent.ID,
		"direction_bias": agent.DirectionBias,
		"tier":           agent.Tier,
		"leverage":       agent.Leverage,
	})
	if err != nil {
		return engine.TriggerDecision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/evaluate", bytes.NewReader(payload))
	if err != nil {
		return engine.TriggerDecision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return engine.TriggerDecision{}, fmt.Errorf("signal evaluator: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return engine.TriggerDecision{}, fmt.Errorf("signal evaluator: status %d", resp.StatusCode)
	}

	var decision engine.TriggerDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return engine.TriggerDecision{}, fmt.Errorf("signal evaluator: decode: %w", err)
	}
	return decision, nil
}

// NoopSignalSource never fires. Used when SIGNAL_SERVICE_URL is unset.
type NoopSignalSource struct{}

func (NoopSignalSource) Evaluate(context.Context, *model.Agent) (engine.TriggerDecision, error) {
	return engine.TriggerDecision{Open: false}, nil
}

// --- Exchange feed ---

// HTTPExchangeFeed pulls mark prices and closed-position reports from the
// exchange connectivity service.
type HTTPExchangeFeed struct {
	baseURL string
	client  *http.Client
}

func NewHTTPExchangeFeed(baseURL string) *HTTPExchangeFeed {
	return &HTTPExchangeFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (f *HTTPExchangeFeed) MarkPrice(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/mark-price", nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchange feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("exchange feed: status %d", resp.StatusCode)
	}

	var body struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("exchange feed: decode: %w", err)
	}
	return body.Price, nil
}

func (f *HTTPExchangeFeed) ClosedPositions(ctx context.Context) ([]engine.ClosedPosition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/closed-positions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange feed: status %d", resp.StatusCode)
	}

	var positions []engine.ClosedPosition
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, fmt.Errorf("exchange feed: decode: %w", err)
	}
	return positions, nil
}

// StubExchangeFeed serves a fixed mark price and no fills. Used when
// EXCHANGE_SERVICE_URL is unset so a development instance can open trades.
type StubExchangeFeed struct {
	Price decimal.Decimal
}

func (f StubExchangeFeed) MarkPrice(context.Context) (decimal.Decimal, error) {
	return f.Price, nil
}

func (f StubExchangeFeed) ClosedPositions(context.Context) ([]engine.ClosedPosition, error) {
	return nil, nil
}

// --- Payout sender ---

// HTTPPayoutSender forwards withdrawal payouts to the on-chain payout
// service. A non-2xx response leaves the payout pending for retry.
type HTTPPayoutSender struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPayoutSender(baseURL string) *HTTPPayoutSender {
	return &HTTPPayoutSender{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (p *HTTPPayoutSender) SendPayout(ctx context.Context, payout *model.PendingPayout) error {
	payload, err := json.Marshal(payout)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payouts", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("payout service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payout service: status %d", resp.StatusCode)
	}
	return nil
}

// LogPayoutSender records the payout in the log and reports success. Used
// when PAYOUT_SERVICE_URL is unset.
type LogPayoutSender struct{}

func (LogPayoutSender) SendPayout(_ context.Context, payout *model.PendingPayout) error {
	slog.Info("payout (dev mode, not sent on-chain)",
		"payout", payout.ID,
		"user", payout.UserID,
		"amount", payout.AmountUSD.String(),
	)
	return nil
}
