package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/model"
)

// TriggerDecision is the AI signal evaluator's verdict for one agent.
type TriggerDecision struct {
	Open      bool   `json:"open"`
	Direction string `json:"direction"`
	Reason    string `json:"reason"`
}

// SignalSource evaluates whether an agent's strategy rules fire against
// current market conditions. Backed by the external AI evaluator; consumed,
// not re-implemented here.
type SignalSource interface {
	Evaluate(ctx context.Context, agent *model.Agent) (TriggerDecision, error)
}

// ClosedPosition is an exchange-reported fill that closed a position.
type ClosedPosition struct {
	TradeID   string          `json:"trade_id"`
	ExitPrice decimal.Decimal `json:"exit_price"`
}

// ExchangeFeed supplies mark prices and closed-position reports from the
// external exchange connectivity layer.
type ExchangeFeed interface {
	MarkPrice(ctx context.Context) (decimal.Decimal, error)
	ClosedPositions(ctx context.Context) ([]ClosedPosition, error)
}

// PayoutSender executes on-chain payouts for withdrawals that skip the
// internal balance credit. The engine records intent before calling it;
// a failed send stays pending and is retried, never re-accounted.
type PayoutSender interface {
	SendPayout(ctx context.Context, payout *model.PendingPayout) error
}
