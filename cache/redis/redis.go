// Package redis wires the Cache API to a Redis backend via
// github.com/redis/go-redis/v9, for deployments that need the Cache API and
// Paused-State Store shared across multiple server processes.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/look4regev/agent-tool-protocol-sub002/cache"
)

// Provider is a cache.Provider backed by a single Redis instance. Tenant and
// key are joined into one Redis key so that no client can ever address
// another tenant's data.
type Provider struct {
	client *goredis.Client
}

// New wraps an existing go-redis client.
func New(client *goredis.Client) *Provider {
	return &Provider{client: client}
}

func redisKey(tenant, key string) string {
	return "atp:cache:" + tenant + ":" + key
}

func (p *Provider) Get(ctx context.Context, tenant, key string) (cache.Entry, bool, error) {
	val, err := p.client.Get(ctx, redisKey(tenant, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, err
	}
	ttl, err := p.client.TTL(ctx, redisKey(tenant, key)).Result()
	if err != nil {
		return cache.Entry{}, false, err
	}
	entry := cache.Entry{Value: val}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}
	return entry, true, nil
}

func (p *Provider) Set(ctx context.Context, tenant, key string, value []byte, ttl time.Duration) error {
	return p.client.Set(ctx, redisKey(tenant, key), value, ttl).Err()
}

func (p *Provider) Delete(ctx context.Context, tenant, key string) error {
	return p.client.Del(ctx, redisKey(tenant, key)).Err()
}

func (p *Provider) Has(ctx context.Context, tenant, key string) (bool, error) {
	n, err := p.client.Exists(ctx, redisKey(tenant, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *Provider) Clear(ctx context.Context, tenant string) error {
	iter := p.client.Scan(ctx, 0, redisKey(tenant, "*"), 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return p.client.Del(ctx, keys...).Err()
}
