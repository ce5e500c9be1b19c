package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002/cache/inmem"
	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
	"github.com/look4regev/agent-tool-protocol-sub002/core"
	"github.com/look4regev/agent-tool-protocol-sub002/provenance"
	"github.com/look4regev/agent-tool-protocol-sub002/session"
	sessioninmem "github.com/look4regev/agent-tool-protocol-sub002/session/inmem"
	storeinmem "github.com/look4regev/agent-tool-protocol-sub002/store/inmem"
	"github.com/look4regev/agent-tool-protocol-sub002/telemetry"
	transporthttp "github.com/look4regev/agent-tool-protocol-sub002/transport/http"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	c := inmem.New()
	cat := catalog.New()
	require.NoError(t, cat.Register(catalog.ToolSpec{
		Group:     catalog.GroupCustom,
		GroupName: "stripe",
		Name:      "createCharge",
	}))

	eng := &core.Core{
		Store:            storeinmem.New(c),
		Catalog:          cat,
		Cache:            c,
		ProvenanceMode:   provenance.ModeNone,
		ProvenanceSecret: "test-secret",
		Logger:           telemetry.NoopLogger{},
		Metrics:          telemetry.NoopMetrics{},
		Tracer:           telemetry.NoopTracer{},
	}

	sessions := sessioninmem.New()
	tokens := session.NewTokenService("test-signing-secret", time.Minute)
	srv := transporthttp.New(eng, cat, sessions, tokens, time.Minute)
	return httptest.NewServer(srv.Handler(context.Background()))
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func initSession(t *testing.T, ts *httptest.Server, guidance string) (clientID, token string) {
	t.Helper()
	resp := postJSON(t, ts, "/api/init", map[string]any{
		"guidance": guidance,
		"tools": []map[string]any{
			{"groupName": "stripe", "name": "createCharge"},
		},
	}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		ClientID string `json:"clientId"`
		Token    string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.ClientID)
	require.NotEmpty(t, out.Token)
	return out.ClientID, out.Token
}

func authHeaders(clientID, token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"X-Client-ID":   clientID,
	}
}

func TestInitIssuesSessionAndDefinitionsEchoGuidance(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	clientID, token := initSession(t, ts, "be terse")

	resp := getJSON(t, ts, "/api/definitions", authHeaders(clientID, token))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		TypescriptLike string   `json:"typescriptLike"`
		APIGroups      []string `json:"apiGroups"`
		Guidance       string   `json:"guidance"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "be terse", out.Guidance)
	require.Contains(t, out.APIGroups, "stripe")
	require.Contains(t, out.TypescriptLike, "namespace stripe")
}

func TestAuthenticatedCallRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/definitions", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthenticatedCallRejectsClientIDMismatch(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	_, token := initSession(t, ts, "")

	resp := getJSON(t, ts, "/api/definitions", authHeaders("someone-else", token))
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAuthenticatedCallRotatesToken(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	clientID, token := initSession(t, ts, "")

	resp := getJSON(t, ts, "/api/definitions", authHeaders(clientID, token))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-ATP-Token"))
	require.NotEmpty(t, resp.Header.Get("X-ATP-Token-Expires"))
	require.NotEqual(t, token, resp.Header.Get("X-ATP-Token"))
}

func TestSearchAndExplore(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	clientID, token := initSession(t, ts, "")

	searchResp := postJSON(t, ts, "/api/search", map[string]any{"query": "charge"}, authHeaders(clientID, token))
	defer searchResp.Body.Close()
	require.Equal(t, http.StatusOK, searchResp.StatusCode)

	var results []struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	require.NoError(t, json.NewDecoder(searchResp.Body).Decode(&results))
	require.NotEmpty(t, results)
	require.Equal(t, "createCharge", results[0].Name)

	exploreResp := postJSON(t, ts, "/api/explore", map[string]any{"path": "/custom/stripe"}, authHeaders(clientID, token))
	defer exploreResp.Body.Close()
	require.Equal(t, http.StatusOK, exploreResp.StatusCode)

	var node struct {
		Children []string `json:"children"`
	}
	require.NoError(t, json.NewDecoder(exploreResp.Body).Decode(&node))
	require.Contains(t, node.Children, "createCharge")
}

func TestExploreUnknownPathIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	clientID, token := initSession(t, ts, "")
	resp := postJSON(t, ts, "/api/explore", map[string]any{"path": "/custom/nope"}, authHeaders(clientID, token))
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteThenResumeRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	clientID, token := initSession(t, ts, "")

	execResp := postJSON(t, ts, "/api/execute", map[string]any{
		"code": `let y = api.stripe.createCharge({amount: 100}); return y;`,
	}, authHeaders(clientID, token))
	defer execResp.Body.Close()
	require.Equal(t, http.StatusOK, execResp.StatusCode)

	var execOut struct {
		ExecutionID   string `json:"executionId"`
		Status        string `json:"status"`
		NeedsCallback struct {
			ID string `json:"id"`
		} `json:"needsCallback"`
	}
	require.NoError(t, json.NewDecoder(execResp.Body).Decode(&execOut))
	require.Equal(t, "paused", execOut.Status)
	require.NotEmpty(t, execOut.NeedsCallback.ID)

	// Token rotates on every authenticated call; use the freshest one.
	rotated := execResp.Header.Get("X-ATP-Token")
	require.NotEmpty(t, rotated)

	resumeResp := postJSON(t, ts, "/api/resume/"+execOut.ExecutionID, map[string]any{
		"results": []map[string]any{
			{"id": execOut.NeedsCallback.ID, "result": map[string]any{"chargeId": "ch_1"}},
		},
	}, authHeaders(clientID, rotated))
	defer resumeResp.Body.Close()
	require.Equal(t, http.StatusOK, resumeResp.StatusCode)

	var resumeOut struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resumeResp.Body).Decode(&resumeOut))
	require.Equal(t, "completed", resumeOut.Status)

	var result map[string]any
	require.NoError(t, json.Unmarshal(resumeOut.Result, &result))
	require.Equal(t, "ch_1", result["chargeId"])
}

func TestResumeRejectsOtherClient(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	clientID, token := initSession(t, ts, "")
	execResp := postJSON(t, ts, "/api/execute", map[string]any{
		"code": `let y = api.stripe.createCharge({amount: 100}); return y;`,
	}, authHeaders(clientID, token))
	defer execResp.Body.Close()
	require.Equal(t, http.StatusOK, execResp.StatusCode)

	var execOut struct {
		ExecutionID string `json:"executionId"`
	}
	require.NoError(t, json.NewDecoder(execResp.Body).Decode(&execOut))

	otherClientID, otherToken := initSession(t, ts, "")

	resumeResp := postJSON(t, ts, "/api/resume/"+execOut.ExecutionID, map[string]any{
		"result": map[string]any{"chargeId": "ch_1"},
	}, authHeaders(otherClientID, otherToken))
	defer resumeResp.Body.Close()
	require.Equal(t, http.StatusForbidden, resumeResp.StatusCode)
}

func TestExecuteStreamEmitsStartAndTerminalEvents(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	clientID, token := initSession(t, ts, "")

	resp := postJSON(t, ts, "/api/execute-stream", map[string]any{
		"code": "let x = 1 + 2; return x * 3;",
	}, authHeaders(clientID, token))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dec := json.NewDecoder(resp.Body)
	var types []string
	for {
		var evt struct {
			Type string `json:"type"`
		}
		if err := dec.Decode(&evt); err != nil {
			break
		}
		types = append(types, evt.Type)
	}
	require.Equal(t, []string{"start", "result"}, types)
}
