// Package cache implements the Cache API (C5): a tenant-prefixed key/value
// store with per-key TTL, shared by the Paused-State Store and available to
// sandboxed programs through the atp.cache namespace.
package cache

import (
	"context"
	"time"
)

// Entry is one stored value. Value is the raw JSON payload the caller
// stored; Provider implementations never interpret it.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time // zero means no expiry
}

// Provider is the backend contract for the Cache API. Every key is scoped by
// tenant so unrelated clients can never read or clobber each other's
// entries, even with colliding logical keys.
type Provider interface {
	// Get returns the stored entry and true, or ok=false on a genuine miss.
	// A stored null value round-trips as an Entry with Value == "null", not
	// as a miss; callers distinguish the two with Has.
	Get(ctx context.Context, tenant, key string) (Entry, bool, error)

	// Set stores value under key, scoped to tenant. ttl of zero means no
	// expiry.
	Set(ctx context.Context, tenant, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, tenant, key string) error

	// Has reports whether key is present, including a stored explicit
	// null, distinguishing "never set" from "set to null".
	Has(ctx context.Context, tenant, key string) (bool, error)

	// Clear removes every key for tenant.
	Clear(ctx context.Context, tenant string) error
}

// nullValue is how the Cache API distinguishes "caller explicitly stored
// null" from "nothing is stored here".
var nullValue = []byte("null")

// IsStoredNull reports whether an Entry's Value is the JSON null literal.
func IsStoredNull(e Entry) bool {
	return len(e.Value) == 4 && string(e.Value) == string(nullValue)
}
