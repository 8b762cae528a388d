// Package metrics exposes the Prometheus registry of the recovery server and the
// server that publishes it.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the recovery meters on a private registry.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	SealUnlocked      prometheus.Gauge
}

// NewMetrics creates a registry with the recovery meters and the Go runtime collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_operations_total",
		Help:      "Total number of recovery operations by outcome.",
	}, []string{"operation", "status"})

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recovery_operation_duration_seconds",
		Help:      "Duration of recovery operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	sealUnlocked := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "seal_unlocked",
		Help:      "1 when the storage sealer holds its key.",
	})

	reg.MustRegister(
		opTotal,
		opDuration,
		sealUnlocked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:          reg,
		OperationsTotal:   opTotal,
		OperationDuration: opDuration,
		SealUnlocked:      sealUnlocked,
	}
}

// Observe records one finished operation.
func (m *Metrics) Observe(operation string, started time.Time, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// SetSealUnlocked updates the seal gauge.
func (m *Metrics) SetSealUnlocked(unlocked bool) {
	if unlocked {
		m.SealUnlocked.Set(1)
	} else {
		m.SealUnlocked.Set(0)
	}
}

// MetricsServer serves /metrics for one registry.
type MetricsServer struct {
	*Metrics
	srv *http.Server
}

// New creates the metrics and a server bound to addr. The server only listens once
// ListenAndServe is called.
func New(namespace, addr string) (*MetricsServer, error) {
	m := NewMetrics(namespace)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))

	return &MetricsServer{
		Metrics: m,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
