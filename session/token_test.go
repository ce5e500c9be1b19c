package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/session"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := session.NewTokenService("test-secret", time.Minute)
	sid := atp.NewSessionID()
	cid := atp.NewClientID()

	tok, err := svc.Issue(sid, cid)
	require.NoError(t, err)

	claims, err := svc.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, sid, claims.SessionID)
	require.Equal(t, cid, claims.ClientID)
}

func TestRotatePreservesIdentity(t *testing.T) {
	svc := session.NewTokenService("test-secret", time.Minute)
	sid := atp.NewSessionID()
	cid := atp.NewClientID()

	tok, err := svc.Issue(sid, cid)
	require.NoError(t, err)

	next, claims, err := svc.Rotate(tok)
	require.NoError(t, err)
	require.NotEmpty(t, next)
	require.Equal(t, sid, claims.SessionID)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	a := session.NewTokenService("secret-a", time.Minute)
	b := session.NewTokenService("secret-b", time.Minute)

	tok, err := a.Issue(atp.NewSessionID(), atp.NewClientID())
	require.NoError(t, err)

	_, err = b.Verify(tok)
	require.ErrorIs(t, err, session.ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := session.NewTokenService("test-secret", -time.Minute)
	tok, err := svc.Issue(atp.NewSessionID(), atp.NewClientID())
	require.NoError(t, err)

	_, err = svc.Verify(tok)
	require.ErrorIs(t, err, session.ErrInvalidToken)
}
