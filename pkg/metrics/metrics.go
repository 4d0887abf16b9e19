package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wqlab/screener/pkg/logger"
)

// Metrics holds the Prometheus collectors for the screening pipeline.
type Metrics struct {
	FilterSurvivors *prometheus.GaugeVec
	RelaxationLevel prometheus.Gauge
	QualifiedCount  prometheus.Gauge
	RebalanceTotal  prometheus.Counter
	OrdersTotal     *prometheus.CounterVec
	DrawdownTrips   prometheus.Counter
	StageDuration   *prometheus.HistogramVec
	FetchFailures   prometheus.Counter
}

// New registers and returns the pipeline metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FilterSurvivors: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "screener",
			Name:      "filter_survivors",
			Help:      "Candidate count after each coarse filter stage",
		}, []string{"filter"}),
		RelaxationLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "screener",
			Name:      "relaxation_level",
			Help:      "Momentum relaxation ladder level used for the last rebalance (0=strict, 2=loosest)",
		}),
		QualifiedCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "screener",
			Name:      "qualified_candidates",
			Help:      "Candidates that passed fine screening at the last rebalance",
		}),
		RebalanceTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "screener",
			Name:      "rebalance_total",
			Help:      "Total rebalance runs",
		}),
		OrdersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "screener",
			Name:      "orders_total",
			Help:      "Orders executed by side",
		}, []string{"side"}),
		DrawdownTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "screener",
			Name:      "drawdown_trips_total",
			Help:      "Times the drawdown circuit breaker tripped",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "screener",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage wall time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "screener",
			Name:      "fetch_failures_total",
			Help:      "Batch fetches dropped after retry exhaustion",
		}),
	}
}

// Server exposes the metrics endpoint.
type Server struct {
	srv    *http.Server
	logger *logger.Logger
}

// NewServer builds an HTTP server serving /metrics from the registry.
func NewServer(port string, reg *prometheus.Registry, log *logger.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: log,
	}
}

// Start begins serving in the calling goroutine.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.srv.Addr).Info("Metrics server started")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
