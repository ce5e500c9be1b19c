package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002/cache/inmem"
)

func TestGetSetMiss(t *testing.T) {
	p := inmem.New()
	ctx := context.Background()

	_, ok, err := p.Get(ctx, "tenant-a", "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.Set(ctx, "tenant-a", "k", []byte(`"v"`), 0))

	entry, ok, err := p.Get(ctx, "tenant-a", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `"v"`, string(entry.Value))
}

func TestTenantIsolation(t *testing.T) {
	p := inmem.New()
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "tenant-a", "k", []byte("1"), 0))
	_, ok, err := p.Get(ctx, "tenant-b", "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoredNullVsMiss(t *testing.T) {
	p := inmem.New()
	ctx := context.Background()

	has, err := p.Has(ctx, "tenant-a", "k")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, p.Set(ctx, "tenant-a", "k", []byte("null"), 0))

	has, err = p.Has(ctx, "tenant-a", "k")
	require.NoError(t, err)
	require.True(t, has)
}

func TestTTLExpiry(t *testing.T) {
	p := inmem.New()
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "tenant-a", "k", []byte("1"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := p.Get(ctx, "tenant-a", "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClear(t *testing.T) {
	p := inmem.New()
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "tenant-a", "k1", []byte("1"), 0))
	require.NoError(t, p.Set(ctx, "tenant-a", "k2", []byte("2"), 0))
	require.NoError(t, p.Clear(ctx, "tenant-a"))

	_, ok, err := p.Get(ctx, "tenant-a", "k1")
	require.NoError(t, err)
	require.False(t, ok)
}
