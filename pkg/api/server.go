package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/erconf/pkg/configstore"
	"github.com/psaab/erconf/pkg/logging"
	"github.com/psaab/erconf/pkg/poll"
)

// Config configures the API server.
type Config struct {
	Addr      string
	HTTPSAddr string      // HTTPS listen address (empty = no HTTPS)
	TLSDir    string      // where the self-signed certificate is kept
	Auth      *AuthConfig // nil = no authentication
	Store     *configstore.Store
	Events    *logging.EventBuffer
	Metrics   *Metrics // nil = counters not exported
}

// Server is the HTTP API server.
type Server struct {
	httpServer  *http.Server
	httpsServer *http.Server
	handler     http.Handler
	store       *configstore.Store
	events      *logging.EventBuffer
	startTime   time.Time

	mu     sync.RWMutex
	lb     *poll.LoadBalance
	lbTime time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		events:    cfg.Events,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Prometheus metrics with isolated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(s))
	if cfg.Metrics != nil {
		registry.MustRegister(cfg.Metrics.PollsTotal, cfg.Metrics.SnapshotsWritten)
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// REST API v1
	mux.HandleFunc("GET /api/v1/status", s.statusHandler)
	mux.HandleFunc("GET /api/v1/config/latest", s.configLatestHandler)
	mux.HandleFunc("GET /api/v1/config/history", s.configHistoryHandler)
	mux.HandleFunc("GET /api/v1/config/snapshot/{n}", s.configSnapshotHandler)
	mux.HandleFunc("GET /api/v1/config/compare", s.configCompareHandler)
	mux.HandleFunc("GET /api/v1/load-balance", s.loadBalanceHandler)
	mux.HandleFunc("GET /api/v1/events", s.eventsHandler)

	// SSE streaming
	mux.HandleFunc("GET /api/v1/events/stream", s.eventStreamHandler)
	mux.HandleFunc("GET /api/v1/logs/stream", s.logStreamHandler)

	var handler http.Handler = mux
	if cfg.Auth != nil {
		handler = authMiddleware(*cfg.Auth, mux)
	}
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	if cfg.HTTPSAddr != "" {
		tlsCert, err := loadOrCreateCert(cfg.TLSDir)
		if err != nil {
			slog.Warn("failed to generate self-signed certificate", "err", err)
		} else {
			s.httpsServer = &http.Server{
				Addr:    cfg.HTTPSAddr,
				Handler: handler,
				TLSConfig: &tls.Config{
					Certificates: []tls.Certificate{tlsCert},
					MinVersion:   tls.VersionTLS12,
				},
			}
		}
	}

	return s
}

// Handler returns the server's root handler, authentication included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetLoadBalance publishes the result of a load-balance poll taken at at.
func (s *Server) SetLoadBalance(lb *poll.LoadBalance, at time.Time) {
	s.mu.Lock()
	s.lb = lb
	s.lbTime = at
	s.mu.Unlock()
}

// LoadBalance returns the last published load-balance status and when it
// was polled. lb is nil before the first successful poll.
func (s *Server) LoadBalance() (lb *poll.LoadBalance, at time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lb, s.lbTime
}

// Run starts the HTTP (and optionally HTTPS) server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		slog.Info("HTTP API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if s.httpsServer != nil {
		go func() {
			slog.Info("HTTPS API server listening", "addr", s.httpsServer.Addr)
			if err := s.httpsServer.ListenAndServeTLS("", ""); err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpsServer != nil {
		s.httpsServer.Shutdown(shutdownCtx)
	}
	return s.httpServer.Shutdown(shutdownCtx)
}
