package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/session"
	"github.com/look4regev/agent-tool-protocol-sub002/session/inmem"
)

func TestCreateLoadRoundTrip(t *testing.T) {
	s := inmem.New()
	rec, err := s.CreateSession(context.Background(), atp.NewClientID(), []string{"stripe"}, "be terse")
	require.NoError(t, err)
	require.Equal(t, session.StatusActive, rec.Status)

	loaded, err := s.Load(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ClientID, loaded.ClientID)
	require.Equal(t, []string{"stripe"}, loaded.Scope)
	require.Equal(t, "be terse", loaded.Guidance)
}

func TestLoadMissingIsNotFound(t *testing.T) {
	s := inmem.New()
	_, err := s.Load(context.Background(), atp.NewSessionID())
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestTouchRejectsEndedSession(t *testing.T) {
	s := inmem.New()
	rec, err := s.CreateSession(context.Background(), atp.NewClientID(), nil, "")
	require.NoError(t, err)

	require.NoError(t, s.End(context.Background(), rec.ID))
	err = s.Touch(context.Background(), rec.ID, time.Minute)
	require.ErrorIs(t, err, session.ErrEnded)
}

func TestEndIsIdempotent(t *testing.T) {
	s := inmem.New()
	rec, err := s.CreateSession(context.Background(), atp.NewClientID(), nil, "")
	require.NoError(t, err)

	require.NoError(t, s.End(context.Background(), rec.ID))
	require.NoError(t, s.End(context.Background(), rec.ID))
}

func TestLoadExpiresAfterTTL(t *testing.T) {
	s := inmem.New()
	rec, err := s.CreateSession(context.Background(), atp.NewClientID(), nil, "")
	require.NoError(t, err)

	require.NoError(t, s.Touch(context.Background(), rec.ID, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err = s.Load(context.Background(), rec.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
}
