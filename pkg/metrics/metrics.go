// Package metrics exposes the Prometheus registry used by gtrends.
// Metrics are defined in their respective packages (trends, collect, sink)
// and registered via promauto to avoid circular dependencies.
//
// This package serves them over HTTP and documents every metric.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by gtrends.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving every registered metric.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves Handler on /metrics for the lifetime of a run.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &Server{
		srv:    &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Start serves in the background. Listen failures are logged, not fatal.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("Serving metrics")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn().Err(err).Str("addr", s.srv.Addr).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/trends):
//   - gtrends_requests_total{granularity, status} (Counter): Remote calls by granularity and HTTP status
//   - gtrends_request_duration_seconds{granularity} (Histogram): Remote call duration
//   - gtrends_errors_total{class} (Counter): Failed calls by class (client, server, rate_limit, network, decode)
//
// Collection Metrics (pkg/collect):
//   - gtrends_fragments_total{granularity} (Counter): Per-term series fragments extracted
//   - gtrends_rows_dropped_total{granularity} (Counter): Timestamps discarded by inner joins
//
// Output Metrics (pkg/sink):
//   - gtrends_tables_written_total{sink} (Counter): Tables written by sink (csv, sqlite, redis)
//
// Example Prometheus Queries:
//
//   # Quota Failures
//   gtrends_errors_total{class="rate_limit"}
//
//   # P95 Call Latency
//   histogram_quantile(0.95, rate(gtrends_request_duration_seconds_bucket[5m]))
//
//   # Timestamps Lost To Inner Joins
//   sum by (granularity) (gtrends_rows_dropped_total)
