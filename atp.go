// Package atp defines the shared identifier types used across the
// Pausable Execution Core: executions, clients, sessions and callbacks are
// all addressed by small typed string wrappers rather than bare strings, so
// that a caller cannot accidentally pass a session ID where an execution ID
// is expected.
package atp

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

type (
	// ExecutionID addresses a single run of a program from first dispatch
	// through every pause/resume cycle until it reaches a terminal state.
	ExecutionID string

	// ClientID addresses a registered caller of the server, issued during
	// /api/init and embedded in every session token.
	ClientID string

	// SessionID addresses a session token lineage. Tokens rotate on every
	// request but share the same SessionID for the life of the session.
	SessionID string

	// CallbackID addresses one pausing call within a single execution. It is
	// stable across rewrites of the same source and across resumes, so a
	// replayed program can tell which callback result belongs to which call
	// site.
	CallbackID string
)

// NewExecutionID mints a fresh execution identifier.
func NewExecutionID() ExecutionID { return ExecutionID(uuid.NewString()) }

// NewSessionID mints a fresh session identifier.
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// NewClientID mints a fresh opaque client identifier: 16 random bytes,
// hex-encoded, with a "cli_" prefix.
func NewClientID() ClientID {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable; a uuid fallback keeps the
		// identifier space collision-free without panicking the server.
		return ClientID("cli_" + uuid.NewString())
	}
	return ClientID("cli_" + hex.EncodeToString(b[:]))
}
