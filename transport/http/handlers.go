package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/atperrors"
	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
	"github.com/look4regev/agent-tool-protocol-sub002/core"
	"github.com/look4regev/agent-tool-protocol-sub002/hooks"
)

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return atperrors.New(atperrors.CodeValidation, "missing request body")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return atperrors.Wrap(atperrors.CodeValidation, "malformed JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleInit implements POST /api/init: unauthenticated, registers any
// client-resident tool descriptors into the catalog under the custom group,
// scopes the new session to those tool groups, and issues the first token.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	scope := make([]string, 0, len(req.Tools))
	seen := map[string]bool{}
	for _, tool := range req.Tools {
		spec := catalog.ToolSpec{
			Group:       catalog.GroupCustom,
			GroupName:   tool.GroupName,
			Name:        tool.Name,
			Description: tool.Description,
			Tags:        tool.Tags,
			Payload:     catalog.TypeSpec{Schema: tool.Payload},
			Result:      catalog.TypeSpec{Schema: tool.Result},
		}
		// A client re-initializing with the same tool shape isn't an error:
		// the catalog has no update-in-place, so a duplicate path is simply
		// left as already registered.
		_ = s.Catalog.Register(spec)
		if !seen[tool.GroupName] {
			seen[tool.GroupName] = true
			scope = append(scope, tool.GroupName)
		}
	}

	clientID := atp.NewClientID()
	sess, err := s.Sessions.CreateSession(r.Context(), clientID, scope, req.Guidance)
	if err != nil {
		writeError(r.Context(), w, atperrors.Wrap(atperrors.CodeInternal, "failed to create session", err))
		return
	}

	token, err := s.Tokens.Issue(sess.ID, clientID)
	if err != nil {
		writeError(r.Context(), w, atperrors.Wrap(atperrors.CodeInternal, "failed to issue token", err))
		return
	}

	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, initResponse{
		ClientID:  string(clientID),
		Token:     token,
		ExpiresAt: now.Add(s.TokenTTL).Format(time.RFC3339),
		RotateAt:  now.Add(s.TokenTTL / 2).Format(time.RFC3339),
	})
}

// handleInfo implements GET /api/info: a capability summary.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": auth.SessionID,
		"scope":     auth.Scope,
	})
}

// handleDefinitions implements GET /api/definitions.
func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())
	sess, err := s.Sessions.Load(r.Context(), atpSessionID(auth.SessionID))
	if err != nil {
		writeError(r.Context(), w, atperrors.Wrap(atperrors.CodeNotFound, "session not found", err))
		return
	}

	groups := map[string]bool{}
	for _, t := range s.Catalog.Scoped(auth.Scope) {
		groups[t.GroupName] = true
	}
	apiGroups := make([]string, 0, len(groups))
	for g := range groups {
		apiGroups = append(apiGroups, g)
	}

	writeJSON(w, http.StatusOK, definitionsResponse{
		TypescriptLike: s.Catalog.TypeScriptSurface(auth.Scope),
		APIGroups:      apiGroups,
		Guidance:       sess.Guidance,
	})
}

// handleSearch implements POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	scope := auth.Scope
	if len(req.APIGroups) > 0 {
		scope = req.APIGroups
	}
	results := s.Catalog.Search(req.Query, scope)
	if req.MaxResults > 0 && len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}

	out := make([]searchResultWire, len(results))
	for i, res := range results {
		out[i] = searchResultWire{
			Path:        res.Tool.Path(),
			Name:        res.Tool.Name,
			Description: res.Tool.Description,
			Score:       res.Score,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleExplore implements POST /api/explore, 404ing on a path that
// resolved to neither a directory nor a registered leaf tool.
func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	var req exploreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	node := s.Catalog.Explore(req.Path)
	if !node.IsLeaf && len(node.Children) == 0 {
		writeError(r.Context(), w, atperrors.Newf(atperrors.CodeNotFound, "no catalog entry at %q", req.Path))
		return
	}

	resp := exploreResponse{Path: node.Path, IsLeaf: node.IsLeaf, Children: node.Children}
	if node.Tool != nil {
		resp.Tool = &toolWire{
			GroupName:   node.Tool.GroupName,
			Name:        node.Tool.Name,
			Description: node.Tool.Description,
			Tags:        node.Tool.Tags,
			Payload:     node.Tool.Payload.Schema,
			Result:      node.Tool.Result.Schema,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExecute implements POST /api/execute.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	execConfig, err := decodeExecConfig(req.Config)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	res, err := s.Core.Execute(r.Context(), core.ExecuteRequest{
		SessionID:       atpSessionID(auth.SessionID),
		ClientID:        atp.ClientID(auth.ClientID),
		Tenant:          auth.ClientID,
		Scope:           auth.Scope,
		Source:          req.Code,
		Config:          execConfig,
		ProvenanceHints: toProvenanceHints(req.ProvenanceHints),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionResultWire(res))
}

// decodeExecConfig decodes an optional executeRequest.Config body into a
// core.ExecConfig, returning nil when the caller supplied none so Core falls
// back entirely to its own defaults.
func decodeExecConfig(raw json.RawMessage) (*core.ExecConfig, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wire execConfigWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, atperrors.Wrap(atperrors.CodeValidation, "malformed execute config", err)
	}
	return wire.toExecConfig(), nil
}

// handleResume implements POST /api/resume/{executionId}. Session binding
// (spec's "resume succeeds only if the request's clientId equals the
// record's clientId; any other client receives forbidden regardless of
// token validity") is enforced here by loading the record before resuming,
// since requireAuth only confirms the token belongs to its own claimed
// clientId, not that this clientId also owns executionId.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())
	executionID := s.pathParam(r, "executionId")
	if executionID == "" {
		writeError(r.Context(), w, atperrors.New(atperrors.CodeValidation, "missing executionId path parameter"))
		return
	}

	rec, err := s.Core.Store.Load(r.Context(), atp.ExecutionID(executionID))
	if err != nil {
		writeError(r.Context(), w, atperrors.Wrap(atperrors.CodeNotFound, "execution not found", err))
		return
	}
	if string(rec.ClientID) != auth.ClientID {
		writeError(r.Context(), w, atperrors.New(atperrors.CodePolicyDenied, "execution belongs to a different client"))
		return
	}

	var req resumeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	var results []core.CallbackResult
	if len(req.Results) > 0 {
		for _, item := range req.Results {
			results = append(results, core.CallbackResult{CallID: atp.CallbackID(item.ID), Result: item.Result})
		}
	} else if len(req.Result) > 0 {
		results = append(results, core.CallbackResult{Result: req.Result})
	}

	res, err := s.Core.Resume(r.Context(), core.ResumeRequest{
		ExecutionID: atp.ExecutionID(executionID),
		Results:     results,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionResultWire(res))
}

// handleExecuteStream implements POST /api/execute-stream: same request
// body as /api/execute, but the response is a line-delimited stream of JSON
// event objects (one per line) with a "type" discriminator matching
// hooks.EventType, flushed as they're published.
func (s *Server) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	execConfig, err := decodeExecConfig(req.Config)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(r.Context(), w, atperrors.New(atperrors.CodeInternal, "streaming unsupported by this response writer"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	bus := hooks.NewBus()
	bw := bufio.NewWriter(w)
	sub, _ := bus.Register(hooks.SubscriberFunc(func(_ context.Context, e hooks.Event) error {
		line, err := json.Marshal(streamEventWire{Type: string(e.Type()), ExecutionID: string(e.ExecutionID()), Payload: e.Payload()})
		if err != nil {
			return err
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		flusher.Flush()
		return bw.Flush()
	}))
	defer sub.Close()

	_, err = s.Core.Execute(r.Context(), core.ExecuteRequest{
		SessionID:       atpSessionID(auth.SessionID),
		ClientID:        atp.ClientID(auth.ClientID),
		Tenant:          auth.ClientID,
		Scope:           auth.Scope,
		Source:          req.Code,
		Bus:             bus,
		Config:          execConfig,
		ProvenanceHints: toProvenanceHints(req.ProvenanceHints),
	})
	if err != nil {
		line, _ := json.Marshal(streamEventWire{Type: string(hooks.EventError), Payload: map[string]string{"message": err.Error()}})
		_, _ = bw.Write(append(line, '\n'))
		bw.Flush()
		flusher.Flush()
	}
}

type streamEventWire struct {
	Type        string `json:"type"`
	ExecutionID string `json:"executionId,omitempty"`
	Payload     any    `json:"payload,omitempty"`
}

// pathParam extracts a named path parameter via the muxer's own Vars, the
// same lookup goa-generated server code performs for path-bound parameters.
func (s *Server) pathParam(r *http.Request, name string) string {
	vars := s.mux.Vars(r)
	return vars[name]
}

func atpSessionID(s string) atp.SessionID { return atp.SessionID(s) }
