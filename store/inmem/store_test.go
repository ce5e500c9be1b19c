package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/cache/inmem"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/store"
	storeinmem "github.com/look4regev/agent-tool-protocol-sub002/store/inmem"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := storeinmem.New(inmem.New())
	ctx := context.Background()

	rec := execution.Record{
		ID:     atp.NewExecutionID(),
		Status: execution.StatusPaused,
		Source: "1 + 1",
	}
	require.NoError(t, s.Save(ctx, rec, time.Minute))

	got, err := s.Load(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Source, got.Source)
	require.Equal(t, execution.StatusPaused, got.Status)
}

func TestLoadMissing(t *testing.T) {
	s := storeinmem.New(inmem.New())
	_, err := s.Load(context.Background(), atp.NewExecutionID())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLockSerializesConcurrentResume(t *testing.T) {
	s := storeinmem.New(inmem.New())
	id := atp.NewExecutionID()

	release1, err := s.Lock(context.Background(), id)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release2, err := s.Lock(context.Background(), id)
		require.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(20 * time.Millisecond):
	}

	release1()
	<-acquired
}
