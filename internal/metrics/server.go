package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/regia-io/regia/internal/logging"
)

// Server exposes the pause metrics for scraping. It serves /metrics and a
// trivial /healthz, and is entirely optional: the cleanup pipeline never
// depends on it.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer // nil selects the default registry

	mu sync.Mutex
	ln net.Listener
	hs *http.Server
}

// NewServer returns a server for the default Prometheus registry. It does
// not listen until Start.
func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

// NewServerWithRegistry returns a server scraping a private registry, which
// tests use to stay off the global one.
func NewServerWithRegistry(addr string, gatherer prometheus.Gatherer) *Server {
	return &Server{addr: addr, gatherer: gatherer}
}

// Start binds the listener and begins serving in the background. Address
// ":0" picks a free port; Addr reports the bound one.
func (s *Server) Start() error {
	handler := promhttp.Handler()
	if s.gatherer != nil {
		handler = promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	hs := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.hs = hs
	s.mu.Unlock()

	go func() {
		if err := hs.Serve(ln); err != nil && err != http.ErrServerClosed {
			// Scraping is best-effort; a dead endpoint must not take the
			// collector down with it.
			logging.Warnf("metrics server stopped", map[string]any{"error": err.Error()})
		}
	}()
	return nil
}

// Addr returns the bound address once Start has run, otherwise the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Close drains in-flight scrapes and stops the server. Safe to call without
// a prior Start.
func (s *Server) Close() error {
	s.mu.Lock()
	hs := s.hs
	s.mu.Unlock()
	if hs == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(ctx)
}
