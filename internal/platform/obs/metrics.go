package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's Prometheus collectors. Each instance owns its
// registry so tests can build isolated copies.
type Metrics struct {
	Registry *prometheus.Registry

	batchOps        *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
	releases        *prometheus.CounterVec
	modelCalls      *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		batchOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainwatch",
			Name:      "batch_operations_total",
			Help:      "Batch lifecycle operations by operation and result.",
		}, []string{"op", "result"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainwatch",
			Name:      "storage_failures_total",
			Help:      "Durable medium failures recovered by the batch store.",
		}, []string{"op"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainwatch",
			Name:      "attachment_releases_total",
			Help:      "Attachment blob releases by result.",
		}, []string{"result"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainwatch",
			Name:      "model_calls_total",
			Help:      "Calls to the language model service by flow and result.",
		}, []string{"flow", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chainwatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	m.Registry.MustRegister(
		m.batchOps,
		m.storageFailures,
		m.releases,
		m.modelCalls,
		m.httpDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// The recorders below tolerate a nil receiver so components can run without metrics.

func (m *Metrics) BatchOp(op string, err error) {
	if m == nil {
		return
	}
	m.batchOps.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) StorageFailure(op string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) AttachmentRelease(err error) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ModelCall(flow string, err error) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(flow, result(err)).Inc()
}

func (m *Metrics) ObserveHTTP(route string, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, status).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
