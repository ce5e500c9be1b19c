package mongo

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/store"
)

type fakeCollection struct {
	mu            sync.Mutex
	docs          map[string]recordDocument
	ttlIndexCalls int
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: map[string]recordDocument{}}
}

func (c *fakeCollection) FindOne(_ context.Context, id string) (recordDocument, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	return doc, ok, nil
}

func (c *fakeCollection) Upsert(_ context.Context, doc recordDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.ID] = doc
	return nil
}

func (c *fakeCollection) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, id)
	return nil
}

func (c *fakeCollection) EnsureTTLIndex(_ context.Context) error {
	c.ttlIndexCalls++
	return nil
}

func TestSaveLoadDelete(t *testing.T) {
	coll := newFakeCollection()
	s := newStore(coll)

	rec := execution.Record{
		ID:        atp.ExecutionID("exec-1"),
		Tenant:    "acme",
		Source:    "return 1;",
		Status:    execution.StatusPaused,
		Pending:   []atp.CallbackID{"cb-1"},
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Save(context.Background(), rec, time.Minute))

	loaded, err := s.Load(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, loaded.ID)
	require.Equal(t, rec.Source, loaded.Source)
	require.Equal(t, rec.Status, loaded.Status)
	require.Equal(t, rec.Pending, loaded.Pending)

	require.NoError(t, s.Delete(context.Background(), rec.ID))
	_, err = s.Load(context.Background(), rec.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoadMissingIsNotFound(t *testing.T) {
	s := newStore(newFakeCollection())
	_, err := s.Load(context.Background(), atp.ExecutionID("nope"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveStoresTenantAndExpiry(t *testing.T) {
	coll := newFakeCollection()
	s := newStore(coll)
	rec := execution.Record{ID: atp.ExecutionID("exec-2"), Tenant: "acme"}
	before := time.Now().UTC()

	require.NoError(t, s.Save(context.Background(), rec, 30*time.Second))

	doc, ok, err := coll.FindOne(context.Background(), "exec-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "acme", doc.Tenant)
	require.True(t, doc.ExpiresAt.After(before))

	var roundTripped execution.Record
	require.NoError(t, json.Unmarshal(doc.Data, &roundTripped))
	require.Equal(t, rec.ID, roundTripped.ID)
}

func TestLockSerializesSameExecution(t *testing.T) {
	s := newStore(newFakeCollection())
	id := atp.ExecutionID("exec-3")

	release, err := s.Lock(context.Background(), id)
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
		t.Fatal("second Lock acquired before first was released")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	<-acquired
}
