// Package ws is the relay's websocket server: it accepts connections,
// runs the version and identity handshake, and drives one publisher or
// consumer session per connection against the shared hub.
package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/health"
	"github.com/humanophone/humanophone/internal/hub"
	"github.com/humanophone/humanophone/internal/metrics"
)

// ErrTooManyConnections is returned when server.max_connections is reached.
var ErrTooManyConnections = errors.New("too many connections")

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *config.Config
	hub    *hub.Hub
	logger *slog.Logger
	clock  clockwork.Clock
	health *health.Reporter

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	mu       sync.Mutex
	conns    int
	shutdown bool
	sessions sync.WaitGroup
	active   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a relay server publishing into h. A nil clock uses the
// real clock.
func NewServer(cfg *config.Config, h *hub.Hub, logger *slog.Logger, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         cfg,
		hub:            h,
		logger:         logger,
		clock:          clock,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		ctx:            ctx,
		cancel:         cancel,
	}
	s.health = health.NewReporter(h, s.ActiveSessions, logger)

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// Routes returns the HTTP handler: the websocket endpoint on / and /ws, plus
// /healthz and /metrics.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.ServeWS)
	r.Get("/ws", s.ServeWS)
	r.Method(http.MethodGet, "/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// ActiveSessions returns the number of identified sessions.
func (s *Server) ActiveSessions() int {
	return int(s.active.Load())
}

func (s *Server) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return http.ErrServerClosed
	}
	if limit := s.config.Server.MaxConnections; limit > 0 && s.conns >= limit {
		return ErrTooManyConnections
	}
	s.conns++
	s.sessions.Add(1)
	return nil
}

func (s *Server) release() {
	s.mu.Lock()
	s.conns--
	s.mu.Unlock()
	s.sessions.Done()
}

// ServeWS upgrades the request and runs the connection in its own goroutine.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if err := s.acquire(); err != nil {
		if errors.Is(err, ErrTooManyConnections) {
			metrics.ConnectionsRejected.Inc()
			s.logger.Warn("connection rejected", "remote", r.RemoteAddr, "error", err)
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release()
		s.logger.Debug("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	go func() {
		defer s.release()
		s.serveConn(conn)
	}()
}

// checkOrigin admits every origin when none are configured. Native clients
// send no Origin header and are always admitted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}
	if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
		return s.allowedHosts[parsed.Host]
	}
	return false
}

// Shutdown ends every session and waits for them to finish. New connections
// are refused afterwards.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.cancel()
	s.sessions.Wait()
}

// ListenAndServe serves on server.address until ctx is cancelled, then
// closes the listener and ends all sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	cfg := s.config.Server
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: cfg.HandshakeTimeout,
	}
	if cfg.TLS.Enabled {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			s.logger.Info("relay listening", "address", cfg.Address, "tls", true)
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		s.logger.Info("relay listening", "address", cfg.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Shutdown()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown()
	return err
}
