// ABOUTME: HTTP server for the conversation record store REST API
// ABOUTME: Wires routes, JWT auth middleware, and graceful shutdown

package backend

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomhq/session-core/internal/auth"
	"github.com/loomhq/session-core/internal/store"
)

// Server serves the conversation record store REST API.
type Server struct {
	store    store.Store
	verifier auth.TokenVerifier
	logger   *slog.Logger
	httpSrv  *http.Server
}

// NewServer creates a record store server on addr. If verifier is nil, the
// API runs unauthenticated (useful for local development and tests).
func NewServer(addr string, st store.Store, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    st,
		verifier: verifier,
		logger:   logger.With("component", "backend"),
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes builds the route table.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /conversations", s.handleListConversations)
	mux.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("PUT /conversations/{id}", s.handleUpdateConversation)
	mux.HandleFunc("DELETE /conversations/{id}", s.handleDeleteConversation)

	mux.HandleFunc("POST /conversations/{id}/message", s.handleAddMessage)
	mux.HandleFunc("PUT /conversations/{id}/messages/{messageId}", s.handleUpdateMessage)
	mux.HandleFunc("DELETE /conversations/{id}/messages/{messageId}", s.handleDeleteMessage)

	if s.verifier == nil {
		return mux
	}

	authMw := auth.HTTPAuthMiddleware(s.verifier)

	// Health stays open; everything else requires a token.
	outer := http.NewServeMux()
	outer.HandleFunc("GET /health", s.handleHealth)
	outer.Handle("/", authMw(mux))
	return outer
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("record store listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("record store shutting down")
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
