package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002/atperrors"
)

// authContext is what an authenticated handler needs about the caller,
// resolved once by requireAuth and carried on the request context.
type authContext struct {
	ClientID  string
	SessionID string
	Scope     []string
}

type ctxKey int

const authCtxKey ctxKey = iota

func withAuth(ctx context.Context, a authContext) context.Context {
	return context.WithValue(ctx, authCtxKey, a)
}

func authFromContext(ctx context.Context) (authContext, bool) {
	a, ok := ctx.Value(authCtxKey).(authContext)
	return a, ok
}

// requireAuth verifies the bearer token against s.tokens, checks the
// X-Client-ID header matches the token's own clientId (spec's session
// binding / forbidden-on-mismatch rule), touches the session's sliding TTL,
// rotates the token, and advertises the rotated token via the
// X-ATP-Token / X-ATP-Token-Expires response headers before calling next.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(r.Context(), w, atperrors.New(atperrors.CodeValidation, "missing Authorization header"))
			return
		}

		rotated, claims, err := s.Tokens.Rotate(raw)
		if err != nil {
			writeError(r.Context(), w, atperrors.Wrap(atperrors.CodeExpired, "invalid or expired token", err))
			return
		}

		headerClientID := r.Header.Get("X-Client-ID")
		if headerClientID != "" && headerClientID != string(claims.ClientID) {
			writeError(r.Context(), w, atperrors.New(atperrors.CodePolicyDenied, "client id does not match token"))
			return
		}

		sess, err := s.Sessions.Load(r.Context(), claims.SessionID)
		if err != nil {
			writeError(r.Context(), w, atperrors.Wrap(atperrors.CodeNotFound, "session not found or expired", err))
			return
		}
		if err := s.Sessions.Touch(r.Context(), claims.SessionID, s.TokenTTL); err != nil {
			writeError(r.Context(), w, atperrors.Wrap(atperrors.CodeExpired, "session already ended", err))
			return
		}

		w.Header().Set("X-ATP-Token", rotated)
		w.Header().Set("X-ATP-Token-Expires", time.Now().Add(s.TokenTTL).UTC().Format(time.RFC3339))

		ctx := withAuth(r.Context(), authContext{
			ClientID:  string(claims.ClientID),
			SessionID: string(claims.SessionID),
			Scope:     sess.Scope,
		})
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}
