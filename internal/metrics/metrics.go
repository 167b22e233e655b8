// Package metrics exposes the engine and API counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/model"
)

// Metrics holds every collector of the process.
type Metrics struct {
	packetsProcessed  prometheus.Counter
	packetsDropped    prometheus.Counter
	assessments       *prometheus.CounterVec
	clusteringRuns    *prometheus.CounterVec
	sourcesClustered  prometheus.Counter
	dangerousClusters prometheus.Gauge
	clusteringTime    prometheus.Histogram
	writerErrors      *prometheus.CounterVec
	queueSize         prometheus.Gauge

	gatherer prometheus.Gatherer
	server   *http.Server
	mu       sync.Mutex
}

// New registers the collectors with reg. A nil reg uses a fresh private registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "sentry"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		packetsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_processed_total",
			Help:      "Total number of packets observed and scored",
		}),
		packetsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Packets that could not be decoded or enqueued",
		}),
		assessments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threat_assessments_total",
			Help:      "Threat assessments by level",
		}, []string{"level"}),
		clusteringRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clustering_runs_total",
			Help:      "Clustering runs by method",
		}, []string{"method"}),
		sourcesClustered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_clustered_total",
			Help:      "Total number of source records clustered",
		}),
		dangerousClusters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dangerous_clusters",
			Help:      "Dangerous clusters found by the latest run",
		}),
		clusteringTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clustering_duration_seconds",
			Help:      "Time spent clustering one batch of sources",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		writerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_errors_total",
			Help:      "Failed writes by writer type",
		}, []string{"writer"}),
		queueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_size",
			Help:      "Current size of the packet queue",
		}),
	}
}

// RecordPacket counts one processed packet and its assessment.
func (m *Metrics) RecordPacket(a model.ThreatAssessment) {
	m.packetsProcessed.Inc()
	m.assessments.WithLabelValues(string(a.ThreatLevel)).Inc()
}

// RecordAssessment counts an assessment produced outside the packet pipeline.
func (m *Metrics) RecordAssessment(a model.ThreatAssessment) {
	m.assessments.WithLabelValues(string(a.ThreatLevel)).Inc()
}

// RecordDrop counts one dropped packet.
func (m *Metrics) RecordDrop() {
	m.packetsDropped.Inc()
}

// RecordRun records the outcome of one clustering run.
func (m *Metrics) RecordRun(run model.ClusterRun, elapsed time.Duration) {
	m.clusteringRuns.WithLabelValues(run.Method).Inc()
	m.sourcesClustered.Add(float64(len(run.Sources)))
	m.clusteringTime.Observe(elapsed.Seconds())

	dangerous := 0
	for _, c := range run.Clusters {
		if c.IsDangerous {
			dangerous++
		}
	}
	m.dangerousClusters.Set(float64(dangerous))
}

// RecordWriterError counts a failed write.
func (m *Metrics) RecordWriterError(writer string) {
	m.writerErrors.WithLabelValues(writer).Inc()
}

// SetQueueSize reports the current packet queue depth.
func (m *Metrics) SetQueueSize(size int) {
	m.queueSize.Set(float64(size))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// StartServer serves the metrics endpoint in the background.
func (m *Metrics) StartServer(cfg config.MetricsConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, m.Handler())

	m.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		log.Info().Str("addr", cfg.ListenAddr).Str("path", cfg.Path).Msg("Starting Prometheus metrics server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}(m.server)
}

// StopServer stops the metrics endpoint if it is running.
func (m *Metrics) StopServer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return m.server.Close()
	}
	return nil
}
