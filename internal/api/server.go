// Package api exposes the assistant over HTTP.
//
// Endpoints:
//
//	POST   /chat                              - run one chat turn
//	GET    /history/{user_id}                 - list logged exchanges
//	DELETE /history/{user_id}                 - clear history and thread state
//	POST   /upload/{user_id}                  - ingest a document (multipart)
//	GET    /documents/{user_id}               - list ingested documents
//	DELETE /documents/{user_id}/{filename}    - remove an ingested document
//	GET    /health                            - liveness probe
//	GET    /ready                             - readiness probe
//
// File structure:
//   - server.go: route registration and server lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - chat.go: chat turn endpoint
//   - history.go: chat history endpoints
//   - documents.go: document upload and management endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to prevent Slowloris-style
	// connection exhaustion.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Chat turns can take several model round-trips.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// ServerConfig contains the server's dependencies.
type ServerConfig struct {
	Engine    ChatEngine       // Required
	ChatLog   ChatLog          // Required
	Threads   ThreadStore      // Optional: nil skips thread cleanup on history delete
	Documents DocumentService  // Optional: nil disables document endpoints
	Pinger    Pinger           // Optional: nil makes /ready always report not ready
	Logger    *slog.Logger
}

// Server is the JSON HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("chat engine is required")
	}
	if cfg.ChatLog == nil {
		return nil, errors.New("chat log is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	hh := &healthHandler{pinger: cfg.Pinger, logger: logger}
	mux.HandleFunc("GET /health", hh.liveness)
	mux.HandleFunc("GET /ready", hh.readiness)

	ch := &chatHandler{engine: cfg.Engine, chatlog: cfg.ChatLog, logger: logger}
	mux.HandleFunc("POST /chat", ch.send)

	hist := &historyHandler{chatlog: cfg.ChatLog, threads: cfg.Threads, logger: logger}
	mux.HandleFunc("GET /history/{user_id}", hist.list)
	mux.HandleFunc("DELETE /history/{user_id}", hist.clear)

	if cfg.Documents != nil {
		dh := &documentsHandler{service: cfg.Documents, logger: logger}
		mux.HandleFunc("POST /upload/{user_id}", dh.upload)
		mux.HandleFunc("GET /documents/{user_id}", dh.list)
		mux.HandleFunc("DELETE /documents/{user_id}/{filename}", dh.remove)
	}

	return &Server{mux: mux, logger: logger}, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
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
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
