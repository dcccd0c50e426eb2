package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pvpai/agent-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for agent reads. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
//
// Only agent rows are cached — the ledger and energy log are append-only
// and read rarely, and trades/investments are always read inside the
// engine's serialized unit of work.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: primary, rdb: rdb, ttl: ttl}
}

// WithTx delegates to the primary store and invalidates the cache entries
// for every agent written inside the transaction, after commit.
func (s *CachedStore) WithTx(ctx context.Context, fn func(Store) error) error {
	rec := &txRecorder{}
	err := s.Store.WithTx(ctx, func(txStore Store) error {
		rec.Store = txStore
		return fn(rec)
	})
	if err != nil {
		return err
	}
	for _, id := range rec.touchedAgents {
		s.rdb.Del(ctx, agentKey(id))
	}
	return nil
}

// txRecorder tracks which agents a transaction wrote so the cache can be
// invalidated once the transaction commits.
type txRecorder struct {
	Store
	touchedAgents []string
}

func (r *txRecorder) CreateAgent(ctx context.Context, a *model.Agent) error {
	r.touchedAgents = append(r.touchedAgents, a.ID)
	return r.Store.CreateAgent(ctx, a)
}

func (r *txRecorder) UpdateAgent(ctx context.Context, a *model.Agent) error {
	r.touchedAgents = append(r.touchedAgents, a.ID)
	return r.Store.UpdateAgent(ctx, a)
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAgent(ctx context.Context, a *model.Agent) error {
	if err := s.Store.CreateAgent(ctx, a); err != nil {
		return err
	}
	s.cacheAgent(ctx, a)
	return nil
}

func (s *CachedStore) UpdateAgent(ctx context.Context, a *model.Agent) error {
	if err := s.Store.UpdateAgent(ctx, a); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, agentKey(a.ID))
	return nil
}

// --- Read-through ---

func (s *CachedStore) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	data, err := s.rdb.Get(ctx, agentKey(id)).Bytes()
	if err == nil {
		var a model.Agent
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.Store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheAgent(ctx, a)
	return a, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheAgent(ctx context.Context, a *model.Agent) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, agentKey(a.ID), data, s.ttl)
	}
}

func agentKey(id string) string { return fmt.Sprintf("agent:%s", id) }
