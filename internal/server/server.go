// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jeranaias/docchat/internal/config"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// ============================================================================
// SERVER
// ============================================================================

// Server is the proxy forwarder's HTTP server.
type Server struct {
	cfg       *config.Config
	forwarder *Forwarder
	limiter   *RateLimiter
	proxies   *TrustedProxies
	router    *http.ServeMux
	started   time.Time

	mu         sync.Mutex
	server     *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a server for cfg. Nothing listens until Start or Serve.
func New(cfg *config.Config) (*Server, error) {
	fwd, err := NewForwarder(cfg.Backend, cfg.Server)
	if err != nil {
		return nil, err
	}

	proxies := cfg.Server.TrustedProxies
	if len(proxies) == 0 {
		proxies = DefaultTrustedProxies
	}

	s := &Server{
		cfg:       cfg,
		forwarder: fwd,
		proxies:   NewTrustedProxies(proxies),
		router:    http.NewServeMux(),
		started:   time.Now(),
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.setupRoutes()
	return s, nil
}

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/query", s.forwarder.HandleQuery)
	s.router.HandleFunc("POST /api/upload", s.forwarder.HandleUpload)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(),
		CORSMiddleware(DefaultCORSConfig(s.cfg.Server.AllowedOrigins)),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter, s.proxies))
	}
	return Chain(middlewares...)(s.router)
}

// Forwarder returns the backend relay.
func (s *Server) Forwarder() *Forwarder {
	return s.forwarder
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
		// No WriteTimeout: answers stream for as long as the backend talks.
		BaseContext: func(net.Listener) context.Context { return s.baseCtx },
		ErrorLog:    slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	slog.Info("SERVER_START", "addr", ln.Addr().String(), "backend", s.cfg.Backend.URL, "version", Version)
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown cancels in-flight relays, so their backend connections are
// released, then waits for handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	slog.Info("SERVER_SHUTDOWN", "active_streams", s.forwarder.stats.ActiveStreams.Load())

	s.cancelBase()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string             `json:"status"`
	Version string             `json:"version"`
	Backend string             `json:"backend"`
	Uptime  string             `json:"uptime"`
	Relay   RelayStatsSnapshot `json:"relay"`

	// BackendStatus is only filled when ?probe=1 is passed.
	BackendStatus string `json:"backend_status,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:  "ok",
		Version: Version,
		Backend: s.cfg.Backend.URL,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Relay:   s.forwarder.stats.Snapshot(),
	}

	if r.URL.Query().Get("probe") == "1" {
		if err := s.forwarder.checkBackend(r.Context()); err != nil {
			health.BackendStatus = "unreachable"
			health.Status = "degraded"
		} else {
			health.BackendStatus = "ok"
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// HELPERS
// ============================================================================

// ErrorResponse is the JSON envelope for every error the proxy returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("JSON_WRITE_FAILED", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
