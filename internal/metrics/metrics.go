package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Admission results.
const (
	ResultAdmitted      = "admitted"
	ResultUnauthorized  = "unauthorized"
	ResultQuotaExceeded = "quota_exceeded"
	ResultUnavailable   = "unavailable"
)

// Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	admissions      *prometheus.CounterVec
	ledgerFailures  *prometheus.CounterVec
	handlerDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_gateway_admissions_total",
				Help: "Admission decisions by result",
			},
			[]string{"result"},
		),
		ledgerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_gateway_ledger_failures_total",
				Help: "Storage failures seen by the admission middleware",
			},
			[]string{"operation"},
		),
		handlerDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quota_gateway_handler_duration_seconds",
				Help:    "Duration of admitted downstream handlers",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) RecordAdmission(result string) {
	m.admissions.WithLabelValues(result).Inc()
}

// RecordLedgerFailure counts a failed resolve, count, reserve or append.
func (m *Metrics) RecordLedgerFailure(operation string) {
	m.ledgerFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveHandler(d time.Duration) {
	m.handlerDuration.Observe(d.Seconds())
}

func (m *Metrics) Admissions(result string) prometheus.Counter {
	return m.admissions.WithLabelValues(result)
}

func (m *Metrics) LedgerFailures(operation string) prometheus.Counter {
	return m.ledgerFailures.WithLabelValues(operation)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
