package aggregator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
)

// Metrics exports run outcomes to Prometheus on a per-run registry
type Metrics struct {
	registry *prometheus.Registry

	reposTotal        *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
	uploadedBytes     prometheus.Counter
	summarizeDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		reposTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitingest_repos_total",
			Help: "Repositories handled by result (cached, success, failed).",
		}, []string{"result"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitingest_failures_total",
			Help: "Failed repositories by reason.",
		}, []string{"reason"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitingest_uploaded_bytes_total",
			Help: "Bytes of summaries uploaded.",
		}),
		summarizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gitingest_summarize_duration_seconds",
			Help:    "Time spent summarizing and uploading one repository.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
	}

	registry.MustRegister(m.reposTotal, m.failuresTotal, m.uploadedBytes, m.summarizeDuration)
	return m
}

// Observe records one outcome
func (m *Metrics) Observe(o domain.Outcome) {
	switch {
	case o.Skipped:
		m.reposTotal.WithLabelValues("cached").Inc()
		return
	case o.Success:
		m.reposTotal.WithLabelValues("success").Inc()
		m.uploadedBytes.Add(float64(o.BytesUploaded))
	default:
		m.reposTotal.WithLabelValues("failed").Inc()
		m.failuresTotal.WithLabelValues(string(o.FailureReason)).Inc()
	}
	m.summarizeDuration.Observe(o.Duration.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
