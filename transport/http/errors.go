package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"goa.design/clue/log"

	"github.com/look4regev/agent-tool-protocol-sub002/atperrors"
)

// statusFor maps an atperrors.Code to the HTTP status the error handling
// section implies: validation/sandbox/parse problems are client errors,
// policy/ownership problems are auth errors, exhausted resource limits are a
// 429, upstream/service problems are a 502, and anything else is a 500.
func statusFor(code atperrors.Code) int {
	switch code {
	case atperrors.CodeValidation, atperrors.CodeSandboxViolation,
		atperrors.CodeParseError, atperrors.CodeReferenceError,
		atperrors.CodeTypeError, atperrors.CodeLoopDetected:
		return http.StatusBadRequest
	case atperrors.CodePolicyDenied:
		return http.StatusForbidden
	case atperrors.CodeNotFound:
		return http.StatusNotFound
	case atperrors.CodeConflict:
		return http.StatusConflict
	case atperrors.CodeExpired:
		return http.StatusUnauthorized
	case atperrors.CodeTimeout, atperrors.CodeMemoryExceeded, atperrors.CodeLLMCallsExceeded:
		return http.StatusTooManyRequests
	case atperrors.CodeToolError, atperrors.CodeNetworkError, atperrors.CodeServiceNotProvided:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error executionErrorWire `json:"error"`
}

// writeError writes a structured error response and logs it, mirroring the
// teacher's errorHandler that logs every error reaching the HTTP boundary.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var atpErr *atperrors.Error
	if !errors.As(err, &atpErr) {
		atpErr = atperrors.Wrap(atperrors.CodeInternal, "unexpected server error", err)
	}
	log.Error(ctx, atpErr, log.KV{K: "code", V: string(atpErr.Code)})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(atpErr.Code))
	_ = json.NewEncoder(w).Encode(errorBody{Error: executionErrorWire{
		Code:      string(atpErr.Code),
		Message:   atpErr.Message,
		Retryable: atpErr.Retryable,
	}})
}
