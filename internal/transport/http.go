// Package transport implements the runtime's external HTTP surface:
// an unauthenticated /health endpoint and a bearer-token-gated
// /tools/{name} dispatch endpoint into the Tool Registrar. One
// http.Server, one http.ServeMux with "METHOD /path" patterns, and a
// Start(ctx) that blocks until ctx is cancelled and then shuts down
// with a bounded drain timeout.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fleetherd/herd/internal/runtime"
)

// Server is the HTTP front door onto a Runtime's Tool Registrar.
type Server struct {
	rt   *runtime.Runtime
	addr string
}

// New constructs a Server bound to rt, listening on addr.
func New(rt *runtime.Runtime, addr string) *Server {
	return &Server{rt: rt, addr: addr}
}

// Start builds the route table and serves until ctx is cancelled, then
// shuts down gracefully with a 5s drain timeout.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.rt.Log.Info("transport: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.rt.Log.Info("transport: shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /tools/{name}", s.auth(s.handleToolCall))
}

// auth enforces the bearer-token requirement. When no token is
// configured, the transport is open — matching a local/dev deployment where
// HERD_API_TOKEN is unset.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.rt.Config.APIToken
		if token == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing or invalid bearer token"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rt.Health())
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing tool name"})
		return
	}

	var args map[string]any
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil && err.Error() != "EOF" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid JSON body: %v", err)})
			return
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := s.rt.Tools.Call(r.Context(), name, args)
	if err != nil {
		// Dispatch itself failed, not the handler's own result — that's
		// the one case that surfaces as a 500.
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
