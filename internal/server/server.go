// Package server exposes the agent over a small JSON HTTP API.
//
// Routes:
//
//	POST /api/query       question answering, no workbook changes
//	POST /api/autonomous  plan and execute against the workbook
//	POST /api/connect     (re)connect to the workbook
//	POST /api/execute     run a single command
//	GET  /api/health      service health
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"gridnerd/internal/agent"
	"gridnerd/internal/config"
	"gridnerd/internal/logging"

	"golang.org/x/net/netutil"
)

// Config holds HTTP server settings.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	MaxConnections  int // 0 = unlimited
}

// ConfigFrom maps the application configuration to server settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ListenAddr:      cfg.Server.ListenAddr,
		ReadTimeout:     cfg.GetReadTimeout(),
		WriteTimeout:    cfg.GetWriteTimeout(),
		ShutdownTimeout: cfg.GetShutdownTimeout(),
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		MaxConnections:  cfg.Server.MaxConnections,
	}
}

// Server serves the HTTP API.
type Server struct {
	agent *agent.Agent
	cfg   Config

	mu     sync.Mutex
	server *http.Server
}

// New creates a Server.
func New(a *agent.Agent, cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:5000"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &Server{agent: a, cfg: cfg}
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server already started")
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.server = srv
	s.mu.Unlock()

	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	logging.Server("listening on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.clear()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	logging.Server("shutting down")
	err := s.Stop(stopCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	srv := s.clear()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) clear() *http.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv := s.server
	s.server = nil
	return srv
}

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Handler returns the routed API handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/autonomous", s.handleAutonomous)
	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	return chain(mux, s.requestIDMiddleware(), s.logMiddleware(), s.recoverMiddleware(), s.maxBodyMiddleware())
}
