// Package inmem provides the default, in-process Cache API backend, used in
// development and by every other component's tests.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002/cache"
)

type record struct {
	value     []byte
	expiresAt time.Time
}

func (r record) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && now.After(r.expiresAt)
}

// Provider is an in-memory cache.Provider, keyed by tenant then key.
type Provider struct {
	mu   sync.Mutex
	data map[string]map[string]record
	now  func() time.Time
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		data: map[string]map[string]record{},
		now:  time.Now,
	}
}

func (p *Provider) Get(_ context.Context, tenant, key string) (cache.Entry, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket, ok := p.data[tenant]
	if !ok {
		return cache.Entry{}, false, nil
	}
	rec, ok := bucket[key]
	if !ok {
		return cache.Entry{}, false, nil
	}
	if rec.expired(p.now()) {
		delete(bucket, key)
		return cache.Entry{}, false, nil
	}
	return cache.Entry{Value: rec.value, ExpiresAt: rec.expiresAt}, true, nil
}

func (p *Provider) Set(_ context.Context, tenant, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket, ok := p.data[tenant]
	if !ok {
		bucket = map[string]record{}
		p.data[tenant] = bucket
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = p.now().Add(ttl)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	bucket[key] = record{value: cp, expiresAt: expiresAt}
	return nil
}

func (p *Provider) Delete(_ context.Context, tenant, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if bucket, ok := p.data[tenant]; ok {
		delete(bucket, key)
	}
	return nil
}

func (p *Provider) Has(_ context.Context, tenant, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket, ok := p.data[tenant]
	if !ok {
		return false, nil
	}
	rec, ok := bucket[key]
	if !ok {
		return false, nil
	}
	if rec.expired(p.now()) {
		delete(bucket, key)
		return false, nil
	}
	return true, nil
}

func (p *Provider) Clear(_ context.Context, tenant string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.data, tenant)
	return nil
}
