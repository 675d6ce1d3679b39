package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/relayer/internal/infra/storage"
	"github.com/vietddude/relayer/internal/relaying/pipeline"
)

// Probe reports source-chain reachability.
type Probe interface {
	IsConnected() bool
}

// StateFunc returns the pipeline's current state.
type StateFunc func() pipeline.State

// Server exposes /health and /metrics.
type Server struct {
	probe  Probe
	state  StateFunc
	store  storage.ProcessedStore
	server *http.Server
}

// NewServer creates the health server.
func NewServer(probe Probe, state StateFunc, store storage.ProcessedStore, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		probe: probe,
		state: state,
		store: store,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.probe.IsConnected()
	state := s.state()

	status := "healthy"
	code := http.StatusOK
	switch {
	case !connected:
		status = "critical"
		code = http.StatusServiceUnavailable
	case state == pipeline.StateDegraded:
		status = "degraded"
	}

	processed := -1
	if n, err := s.store.Count(r.Context()); err == nil {
		processed = n
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"connected": connected,
		"pipeline":  string(state),
		"processed": processed,
	})
}
