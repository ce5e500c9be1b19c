// Package session implements the Session & Token Service (C3): it issues an
// opaque client identifier at /api/init, binds it to a signed session
// token, and rotates that token on a sliding window as requests come in.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Record is the durable representation of one session. Scope holds the
// catalog scope (which tool groups/credentials this client may use) applied
// by the catalog and policy engine on every request.
type Record struct {
	ID        atp.SessionID
	ClientID  atp.ClientID
	Status    Status
	Scope     []string
	// Guidance is the free-text string the client supplied at init,
	// echoed back verbatim by GET /api/definitions.
	Guidance  string
	CreatedAt time.Time
	UpdatedAt time.Time
	EndedAt   time.Time
}

// Sentinel errors returned by Store.
var (
	ErrNotFound = errors.New("session: not found")
	ErrEnded    = errors.New("session: already ended")
)

// Store persists Session records. CreateSession always creates a new
// active session under a freshly minted ID.
type Store interface {
	CreateSession(ctx context.Context, clientID atp.ClientID, scope []string, guidance string) (Record, error)
	Load(ctx context.Context, id atp.SessionID) (Record, error)
	Touch(ctx context.Context, id atp.SessionID, ttl time.Duration) error
	End(ctx context.Context, id atp.SessionID) error
}
