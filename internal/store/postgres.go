package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pvpai/agent-engine/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same store
// code serves pooled and transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary and fuel values are stored as NUMERIC for exact precision.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// WithTx runs fn inside a single database transaction. Nested calls reuse
// the enclosing transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txStore := &PostgresStore{pool: s.pool, q: tx, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

// --- Agents ---

const agentColumns = `id, owner_id, name, status, tier, direction_bias,
	max_position_pct::TEXT, leverage,
	capital_balance::TEXT, total_shares::TEXT,
	energy_balance::TEXT, burn_rate_per_hour::TEXT, creator_earnings::TEXT,
	insolvent, last_burn_at, died_at, created_at`

func (s *PostgresStore) CreateAgent(ctx context.Context, a *model.Agent) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO agents (id, owner_id, name, status, tier, direction_bias,
			max_position_pct, leverage, capital_balance, total_shares,
			energy_balance, burn_rate_per_hour, creator_earnings,
			insolvent, last_burn_at, died_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8, $9::NUMERIC, $10::NUMERIC,
			$11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14, $15, $16, $17)`,
		a.ID, a.OwnerID, a.Name, a.Status, a.Tier, a.DirectionBias,
		a.MaxPositionPct.String(), a.Leverage,
		a.CapitalBalance.String(), a.TotalShares.String(),
		a.EnergyBalance.String(), a.BurnRatePerHour.String(), a.CreatorEarnings.String(),
		a.Insolvent, a.LastBurnAt, a.DiedAt, a.CreatedAt,
	)
	return err
}

func scanAgent(row pgx.Row) (*model.Agent, error) {
	var a model.Agent
	var maxPos, capital, shares, fuel, burn, earnings string

	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Status, &a.Tier, &a.DirectionBias,
		&maxPos, &a.Leverage, &capital, &shares, &fuel, &burn, &earnings,
		&a.Insolvent, &a.LastBurnAt, &a.DiedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.MaxPositionPct, _ = decimal.NewFromString(maxPos)
	a.CapitalBalance, _ = decimal.NewFromString(capital)
	a.TotalShares, _ = decimal.NewFromString(shares)
	a.EnergyBalance, _ = decimal.NewFromString(fuel)
	a.BurnRatePerHour, _ = decimal.NewFromString(burn)
	a.CreatorEarnings, _ = decimal.NewFromString(earnings)

	return &a, nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	a, err := scanAgent(s.q.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "agent", id)
	}
	return a, nil
}

func (s *PostgresStore) listAgents(ctx context.Context, query string, args ...any) ([]model.Agent, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) ListAgentsByStatus(ctx context.Context, status string) ([]model.Agent, error) {
	return s.listAgents(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE status = $1 ORDER BY created_at`, status)
}

func (s *PostgresStore) ListAgents(ctx context.Context) ([]model.Agent, error) {
	return s.listAgents(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC`)
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, a *model.Agent) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE agents
		 SET status = $2, tier = $3,
		     capital_balance = $4::NUMERIC, total_shares = $5::NUMERIC,
		     energy_balance = $6::NUMERIC, burn_rate_per_hour = $7::NUMERIC,
		     creator_earnings = $8::NUMERIC, insolvent = $9,
		     last_burn_at = $10, died_at = $11
		 WHERE id = $1`,
		a.ID, a.Status, a.Tier,
		a.CapitalBalance.String(), a.TotalShares.String(),
		a.EnergyBalance.String(), a.BurnRatePerHour.String(),
		a.CreatorEarnings.String(), a.Insolvent,
		a.LastBurnAt, a.DiedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// --- Investments ---

func (s *PostgresStore) CreateInvestment(ctx context.Context, inv *model.Investment) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO investments (id, agent_id, user_id, principal, shares, status, created_at, withdrawn_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)`,
		inv.ID, inv.AgentID, inv.UserID,
		inv.Principal.String(), inv.Shares.String(),
		inv.Status, inv.CreatedAt, inv.WithdrawnAt,
	)
	return err
}

func scanInvestment(row pgx.Row) (*model.Investment, error) {
	var inv model.Investment
	var principal, shares string

	err := row.Scan(&inv.ID, &inv.AgentID, &inv.UserID,
		&principal, &shares, &inv.Status, &inv.CreatedAt, &inv.WithdrawnAt)
	if err != nil {
		return nil, err
	}

	inv.Principal, _ = decimal.NewFromString(principal)
	inv.Shares, _ = decimal.NewFromString(shares)
	return &inv, nil
}

const investmentColumns = `id, agent_id, user_id, principal::TEXT, shares::TEXT, status, created_at, withdrawn_at`

func (s *PostgresStore) GetInvestment(ctx context.Context, id string) (*model.Investment, error) {
	inv, err := scanInvestment(s.q.QueryRow(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "investment", id)
	}
	return inv, nil
}

func (s *PostgresStore) listInvestments(ctx context.Context, query string, args ...any) ([]model.Investment, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListOpenInvestmentsByAgent(ctx context.Context, agentID string) ([]model.Investment, error) {
	return s.listInvestments(ctx,
		`SELECT `+investmentColumns+` FROM investments
		 WHERE agent_id = $1 AND status = 'open' ORDER BY created_at`, agentID)
}

func (s *PostgresStore) ListInvestmentsByUser(ctx context.Context, userID string) ([]model.Investment, error) {
	return s.listInvestments(ctx,
		`SELECT `+investmentColumns+` FROM investments
		 WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (s *PostgresStore) MarkInvestmentWithdrawn(ctx context.Context, id string, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE investments SET status = 'withdrawn', withdrawn_at = $2
		 WHERE id = $1 AND status = 'open'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("investment %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Trades ---

const tradeColumns = `id, agent_id, direction, size_usd::TEXT, leverage,
	entry_price::TEXT, exit_price::TEXT, realized_pnl::TEXT,
	trigger_reason, status, opened_at, closed_at`

func (s *PostgresStore) CreateTrade(ctx context.Context, t *model.Trade) error {
	var exitPrice, pnl *string
	if t.ExitPrice != nil {
		v := t.ExitPrice.String()
		exitPrice = &v
	}
	if t.RealizedPnL != nil {
		v := t.RealizedPnL.String()
		pnl = &v
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO trades (id, agent_id, direction, size_usd, leverage,
			entry_price, exit_price, realized_pnl, trigger_reason, status, opened_at, closed_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11, $12)`,
		t.ID, t.AgentID, t.Direction, t.SizeUSD.String(), t.Leverage,
		t.EntryPrice.String(), exitPrice, pnl,
		t.TriggerReason, t.Status, t.OpenedAt, t.ClosedAt,
	)
	return err
}

func scanTrade(row pgx.Row) (*model.Trade, error) {
	var t model.Trade
	var size, entry string
	var exit, pnl *string

	err := row.Scan(&t.ID, &t.AgentID, &t.Direction, &size, &t.Leverage,
		&entry, &exit, &pnl, &t.TriggerReason, &t.Status, &t.OpenedAt, &t.ClosedAt)
	if err != nil {
		return nil, err
	}

	t.SizeUSD, _ = decimal.NewFromString(size)
	t.EntryPrice, _ = decimal.NewFromString(entry)
	if exit != nil {
		d, _ := decimal.NewFromString(*exit)
		t.ExitPrice = &d
	}
	if pnl != nil {
		d, _ := decimal.NewFromString(*pnl)
		t.RealizedPnL = &d
	}
	return &t, nil
}

func (s *PostgresStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	t, err := scanTrade(s.q.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "trade", id)
	}
	return t, nil
}

func (s *PostgresStore) GetOpenTradeByAgent(ctx context.Context, agentID string) (*model.Trade, error) {
	t, err := scanTrade(s.q.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE agent_id = $1 AND status = 'open'`, agentID))
	if err != nil {
		return nil, notFound(err, "open trade for agent", agentID)
	}
	return t, nil
}

func (s *PostgresStore) ListOpenTrades(ctx context.Context) ([]model.Trade, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE status = 'open' ORDER BY opened_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) CloseTrade(ctx context.Context, id string, exitPrice, realizedPnL decimal.Decimal, closedAt time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE trades
		 SET status = 'closed', exit_price = $2::NUMERIC, realized_pnl = $3::NUMERIC, closed_at = $4
		 WHERE id = $1 AND status = 'open'`,
		id, exitPrice.String(), realizedPnL.String(), closedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Ledger ---

const txnColumns = `id, user_id, COALESCE(agent_id, ''), type, amount::TEXT,
	balance_before::TEXT, balance_after::TEXT, description, created_at`

func (s *PostgresStore) InsertTransaction(ctx context.Context, e *model.Transaction) error {
	var agentID *string
	if e.AgentID != "" {
		agentID = &e.AgentID
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO transactions (id, user_id, agent_id, type, amount, balance_before, balance_after, description, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		e.ID, e.UserID, agentID, e.Type,
		e.Amount.String(), e.BalanceBefore.String(), e.BalanceAfter.String(),
		e.Description, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) getTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Transaction
	for rows.Next() {
		var e model.Transaction
		var amount, before, after string

		if err := rows.Scan(&e.ID, &e.UserID, &e.AgentID, &e.Type,
			&amount, &before, &after, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}

		e.Amount, _ = decimal.NewFromString(amount)
		e.BalanceBefore, _ = decimal.NewFromString(before)
		e.BalanceAfter, _ = decimal.NewFromString(after)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetTransactionsByAgent(ctx context.Context, agentID string) ([]model.Transaction, error) {
	return s.getTransactions(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE agent_id = $1 ORDER BY created_at`, agentID)
}

func (s *PostgresStore) GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.getTransactions(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at`, userID)
}

// --- Energy log ---

func (s *PostgresStore) InsertEnergyLog(ctx context.Context, log *model.EnergyLog) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO energy_logs (id, agent_id, amount, reason, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)`,
		log.ID, log.AgentID, log.Amount.String(), log.Reason, log.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetEnergyLogsByAgent(ctx context.Context, agentID string) ([]model.EnergyLog, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, agent_id, amount::TEXT, reason, created_at
		 FROM energy_logs WHERE agent_id = $1 ORDER BY created_at`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.EnergyLog
	for rows.Next() {
		var e model.EnergyLog
		var amount string
		if err := rows.Scan(&e.ID, &e.AgentID, &amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amount)
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// --- Pending payouts ---

func (s *PostgresStore) CreatePendingPayout(ctx context.Context, p *model.PendingPayout) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO pending_payouts (id, investment_id, user_id, amount_usd, status, created_at, sent_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`,
		p.ID, p.InvestmentID, p.UserID, p.AmountUSD.String(), p.Status, p.CreatedAt, p.SentAt,
	)
	return err
}

func (s *PostgresStore) UpdatePayoutStatus(ctx context.Context, id, status string, sentAt *time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE pending_payouts SET status = $2, sent_at = $3 WHERE id = $1`,
		id, status, sentAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payout %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListPayoutsByStatus(ctx context.Context, status string) ([]model.PendingPayout, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, investment_id, user_id, amount_usd::TEXT, status, created_at, sent_at
		 FROM pending_payouts WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []model.PendingPayout
	for rows.Next() {
		var p model.PendingPayout
		var amount string
		if err := rows.Scan(&p.ID, &p.InvestmentID, &p.UserID, &amount, &p.Status, &p.CreatedAt, &p.SentAt); err != nil {
			return nil, err
		}
		p.AmountUSD, _ = decimal.NewFromString(amount)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
