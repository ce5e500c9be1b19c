// Package store implements the Paused-State Store (C4): durable, sliding-TTL
// persistence for execution.Record keyed by execution ID, plus the
// concurrent-resume serialization every resume must go through.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
)

// ErrNotFound is returned when an execution ID has no record, either
// because it never existed or because it expired and was garbage
// collected.
var ErrNotFound = errors.New("store: execution not found")

// Store persists execution.Record. Save refreshes the sliding TTL on every
// write, matching the session.Store Touch pattern: a paused execution that
// keeps getting resumed-and-re-paused never expires mid-conversation, but
// one that's abandoned is reclaimed after maxPauseDuration.
type Store interface {
	// Save upserts rec and resets its expiry to now+ttl.
	Save(ctx context.Context, rec execution.Record, ttl time.Duration) error
	// Load returns the current record for id, or ErrNotFound.
	Load(ctx context.Context, id atp.ExecutionID) (execution.Record, error)
	// Delete removes a terminal execution's record. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, id atp.ExecutionID) error

	// Lock serializes concurrent resumes of the same execution: it blocks
	// until no other caller holds the lock for id, then returns a release
	// function the caller must invoke exactly once. This resolves Open
	// Question 3: concurrent resumes of the same executionId block rather
	// than one of them receiving a conflict error.
	Lock(ctx context.Context, id atp.ExecutionID) (release func(), err error)
}
