// Package api exposes the HTTP surface: registration, chat CRUD, the
// streaming RAG query endpoint and document upload.
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: recovery, request logging, bearer-token auth
//   - auth.go: POST /api/auth/register
//   - chat.go: chat CRUD and the SSE query endpoint
//   - upload.go: POST /api/business/upload
//   - health.go: liveness and readiness probes
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orgpedia/orgpedia/internal/log"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to fend off slowloris clients.
	ReadHeaderTimeout = 10 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server. Write timeouts are deliberately unset: the
// query endpoint streams completions for as long as the model generates.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// Deps bundles the collaborators the handlers need.
type Deps struct {
	Pool   *pgxpool.Pool
	Users  UserStore
	Chats  ChatStore
	Engine AnswerStreamer
	Ingest Ingester
	Tokens TokenIssuer
	Logger log.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(d Deps) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, logger: d.Logger}

	health := &HealthHandler{pool: d.Pool, logger: d.Logger}
	health.RegisterRoutes(mux)

	authH := &AuthHandler{users: d.Users, tokens: d.Tokens, logger: d.Logger}
	authH.RegisterRoutes(mux)

	guard := requireAuth(d.Tokens, d.Logger)

	chatH := &ChatHandler{chats: d.Chats, engine: d.Engine, logger: d.Logger}
	chatH.RegisterRoutes(mux, guard)

	uploadH := &UploadHandler{pipeline: d.Ingest, logger: d.Logger}
	uploadH.RegisterRoutes(mux, guard)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
