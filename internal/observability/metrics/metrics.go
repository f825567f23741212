// Package metrics holds the prometheus instruments for the billing engine.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "hourbill"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	invoiceOperations *prometheus.CounterVec
	overdueSwept      prometheus.Counter
	invoiceAmount     *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	requestsImported  *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
}

// NewRegistry builds the registry served on /metrics, preloaded with runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New registers the domain instruments on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		invoiceOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_operations_total",
			Help:      "Invoice lifecycle operations by outcome.",
		}, []string{"operation", "outcome"}),
		overdueSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_marked_overdue_total",
			Help:      "Invoices transitioned to overdue by the sweeper.",
		}),
		invoiceAmount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_total_amount",
			Help:      "Total of generated invoices.",
			Buckets:   []float64{0, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"currency"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"method", "route", "status_class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		requestsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_items_imported_total",
			Help:      "Work items read by the CSV importer.",
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Background job runs by outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Background job latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}

	for _, c := range []prometheus.Collector{
		m.invoiceOperations,
		m.overdueSwept,
		m.invoiceAmount,
		m.httpRequests,
		m.httpDuration,
		m.requestsImported,
		m.jobRuns,
		m.jobDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordInvoiceOperation counts an invoice operation. Safe on a nil receiver.
func (m *Metrics) RecordInvoiceOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.invoiceOperations.WithLabelValues(strings.TrimSpace(operation), outcome).Inc()
}

func (m *Metrics) RecordInvoiceTotal(currency string, total float64) {
	if m == nil {
		return
	}
	m.invoiceAmount.WithLabelValues(strings.ToUpper(strings.TrimSpace(currency))).Observe(total)
}

func (m *Metrics) RecordOverdueSwept(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.overdueSwept.Add(float64(count))
}

func (m *Metrics) RecordImport(imported, skipped int) {
	if m == nil {
		return
	}
	m.requestsImported.WithLabelValues("imported").Add(float64(imported))
	m.requestsImported.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) RecordJobRun(job string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(seconds)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
