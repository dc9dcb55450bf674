package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"swapRelay/internal/model"
	"swapRelay/internal/pool"
)

const shutdownTimeout = 5 * time.Second

// PoolView is the read-only part of a pool served over HTTP.
type PoolView interface {
	Status() (pool.Status, error)
	MetadataTokens() (model.MetadataTokens, error)
}

// Server exposes pool queries, health and metrics.
type Server struct {
	addr     string
	pool     PoolView
	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewServer builds a server. A nil registry disables /metrics.
func NewServer(addr string, p PoolView, registry *prometheus.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, pool: p, registry: registry, logger: logger}
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/metadata_tokens", s.metadataTokens)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listen", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	status, cause := s.pool.Status()
	resp := healthResponse{Status: status.String()}
	code := http.StatusOK
	if cause != nil {
		resp.Error = cause.Error()
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) metadataTokens(w http.ResponseWriter, _ *http.Request) {
	tokens, err := s.pool.MetadataTokens()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, pool.ErrNotInitialized) {
			code = http.StatusServiceUnavailable
		}
		s.writeJSON(w, code, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}
