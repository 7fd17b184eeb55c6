package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "v6scout_queries_total",
			Help: "Total number of domain lookups by outcome",
		},
		[]string{"outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "v6scout_query_duration_seconds",
			Help:    "Duration of domain lookups in seconds, retries included",
			Buckets: []float64{5, 10, 20, 30, 60, 120, 240, 400},
		},
		[]string{"outcome"},
	)

	QueryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "v6scout_query_attempts",
			Help:    "Attempts used per domain lookup",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	AddressesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "v6scout_addresses_total",
			Help: "Total number of IPv6 addresses extracted",
		},
	)

	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "v6scout_rotations_total",
			Help: "Egress node switches by result",
		},
		[]string{"result"},
	)

	BlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "v6scout_blocks_total",
			Help: "Block indicators observed by source",
		},
		[]string{"source"},
	)

	IdentityRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "v6scout_identity_requests",
			Help: "Queries served by the current egress identity",
		},
	)

	BatchPosition = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "v6scout_batch_position",
			Help: "Index of the next domain to process",
		},
	)

	CheckpointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "v6scout_checkpoints_total",
			Help: "Progress checkpoints written",
		},
	)
)

// RecordQuery updates the lookup metrics for one finished domain.
func RecordQuery(outcome string, attempts, addresses int, d time.Duration) {
	QueriesTotal.WithLabelValues(outcome).Inc()
	QueryDuration.WithLabelValues(outcome).Observe(d.Seconds())
	QueryAttempts.Observe(float64(attempts))
	AddressesTotal.Add(float64(addresses))
}

// RecordRotation counts one node switch attempt.
func RecordRotation(result string) {
	RotationsTotal.WithLabelValues(result).Inc()
}

// RecordBlock counts one observed block indicator.
func RecordBlock(source string) {
	BlocksTotal.WithLabelValues(source).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start begins listening on addr and exposes /metrics.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
