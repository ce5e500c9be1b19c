// Package http hand-writes the PEC's HTTP transport: every route named in
// spec.md's external-interfaces section mounted on a goa.design/goa/v3/http
// Muxer, the same way goa-ai's generated servers are mounted, but without
// DSL codegen — the handlers here decode/encode JSON directly against
// core.Core, catalog.Catalog and session.Store.
package http

import (
	"context"
	"net/http"
	"time"

	"goa.design/clue/log"
	goahttp "goa.design/goa/v3/http"

	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
	"github.com/look4regev/agent-tool-protocol-sub002/core"
	"github.com/look4regev/agent-tool-protocol-sub002/session"
)

// Server wires the HTTP surface to the execution core and its collaborators.
type Server struct {
	Core     *core.Core
	Catalog  *catalog.Catalog
	Sessions session.Store
	Tokens   *session.TokenService
	TokenTTL time.Duration

	mux goahttp.Muxer
}

// New builds a Server and mounts every route on a fresh goahttp.Muxer.
func New(c *core.Core, cat *catalog.Catalog, sessions session.Store, tokens *session.TokenService, tokenTTL time.Duration) *Server {
	s := &Server{
		Core:     c,
		Catalog:  cat,
		Sessions: sessions,
		Tokens:   tokens,
		TokenTTL: tokenTTL,
		mux:      goahttp.NewMuxer(),
	}
	s.mount()
	return s
}

func (s *Server) mount() {
	s.mux.Handle("POST", "/api/init", s.handleInit)
	s.mux.Handle("GET", "/api/info", s.requireAuth(s.handleInfo))
	s.mux.Handle("GET", "/api/definitions", s.requireAuth(s.handleDefinitions))
	s.mux.Handle("POST", "/api/search", s.requireAuth(s.handleSearch))
	s.mux.Handle("POST", "/api/explore", s.requireAuth(s.handleExplore))
	s.mux.Handle("POST", "/api/execute", s.requireAuth(s.handleExecute))
	s.mux.Handle("POST", "/api/execute-stream", s.requireAuth(s.handleExecuteStream))
	s.mux.Handle("POST", "/api/resume/{executionId}", s.requireAuth(s.handleResume))
}

// Handler returns the assembled http.Handler, wrapped with clue's request
// logging middleware exactly as goa-ai/example/cmd/assistant/http.go wraps
// its own mux.
func (s *Server) Handler(ctx context.Context) http.Handler {
	var handler http.Handler = s.mux
	return log.HTTP(ctx)(handler)
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// cancelled, then shuts down gracefully with a 30s timeout, mirroring the
// teacher's handleHTTPServer shutdown sequence.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "HTTP server listening on %q", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Printf(ctx, "shutting down HTTP server at %q", addr)
	return srv.Shutdown(shutdownCtx)
}
