// Package inmem provides the default session.Store, backing it with a plain
// map guarded by a mutex and sliding per-record expiry, the same shape as
// the rest of the server's in-memory stores.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/session"
)

// Store is an in-memory session.Store.
type Store struct {
	mu       sync.Mutex
	records  map[atp.SessionID]session.Record
	expireAt map[atp.SessionID]time.Time
	now      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		records:  map[atp.SessionID]session.Record{},
		expireAt: map[atp.SessionID]time.Time{},
		now:      time.Now,
	}
}

func (s *Store) CreateSession(_ context.Context, clientID atp.ClientID, scope []string, guidance string) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := session.Record{
		ID:        atp.NewSessionID(),
		ClientID:  clientID,
		Status:    session.StatusActive,
		Scope:     append([]string(nil), scope...),
		Guidance:  guidance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *Store) Load(_ context.Context, id atp.SessionID) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	if exp, ok := s.expireAt[id]; ok && s.now().After(exp) {
		delete(s.records, id)
		delete(s.expireAt, id)
		return session.Record{}, session.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Touch(_ context.Context, id atp.SessionID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return session.ErrNotFound
	}
	if rec.Status != session.StatusActive {
		return session.ErrEnded
	}
	rec.UpdatedAt = s.now()
	s.records[id] = rec
	if ttl > 0 {
		s.expireAt[id] = s.now().Add(ttl)
	}
	return nil
}

func (s *Store) End(_ context.Context, id atp.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return session.ErrNotFound
	}
	if rec.Status == session.StatusEnded {
		return nil // idempotent
	}
	rec.Status = session.StatusEnded
	rec.EndedAt = s.now()
	s.records[id] = rec
	return nil
}
