// Package inmem provides a store.Store built directly on the Cache API
// (C5), the same layering the teacher uses for its session store: the
// Paused-State Store does not need its own persistence mechanism, only a
// tenant-scoped key/value backend with TTL.
package inmem

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/cache"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/store"
)

const tenant = "executions"

// Store implements store.Store on top of a cache.Provider.
type Store struct {
	cache cache.Provider

	locksMu sync.Mutex
	locks   map[atp.ExecutionID]*sync.Mutex
}

// New builds a Store backed by cache.
func New(c cache.Provider) *Store {
	return &Store{cache: c, locks: map[atp.ExecutionID]*sync.Mutex{}}
}

func (s *Store) Save(ctx context.Context, rec execution.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, tenant, string(rec.ID), data, ttl)
}

func (s *Store) Load(ctx context.Context, id atp.ExecutionID) (execution.Record, error) {
	entry, ok, err := s.cache.Get(ctx, tenant, string(id))
	if err != nil {
		return execution.Record{}, err
	}
	if !ok {
		return execution.Record{}, store.ErrNotFound
	}
	var rec execution.Record
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return execution.Record{}, err
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id atp.ExecutionID) error {
	return s.cache.Delete(ctx, tenant, string(id))
}

func (s *Store) Lock(_ context.Context, id atp.ExecutionID) (func(), error) {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return func() { mu.Unlock() }, nil
}
