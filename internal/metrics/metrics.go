// Package metrics holds the Prometheus collectors shared across the
// server and the worker.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"invoicer/internal/cache"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicer_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code",
	}, []string{"method", "route", "code"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoicer_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	DocumentWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicer_document_writes_total",
		Help: "Document writes by event type",
	}, []string{"event"})

	Renders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicer_renders_total",
		Help: "Printable renders by layout",
	}, []string{"layout"})

	PDFExports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicer_pdf_exports_total",
		Help: "PDF exports by result",
	}, []string{"result"})

	PDFDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoicer_pdf_export_duration_seconds",
		Help:    "Time spent printing a document to PDF",
		Buckets: []float64{.25, .5, 1, 2, 5, 10, 30},
	})

	LedgerSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicer_ledger_syncs_total",
		Help: "Ledger spreadsheet syncs by result",
	}, []string{"result"})

	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicer_deliveries_total",
		Help: "Emailed documents by result",
	}, []string{"result"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoicer_rate_limited_total",
		Help: "Requests rejected by the per client rate limiter",
	})

	SuspiciousRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoicer_suspicious_requests_total",
		Help: "Requests matching known probe patterns",
	})

	SweepTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicer_sweep_transitions_total",
		Help: "Documents moved by the overdue sweep, by kind and new status",
	}, []string{"kind", "status"})
)

// Collectors returns every application collector.
func Collectors() []prometheus.Collector {
	cs := []prometheus.Collector{
		HTTPRequests, HTTPDuration, DocumentWrites, Renders,
		PDFExports, PDFDuration, LedgerSyncs, Deliveries, SweepTransitions,
		RateLimited, SuspiciousRequests,
	}
	return append(cs, cache.Collectors()...)
}

// NewRegistry returns a registry with the application, Go runtime and
// process collectors plus any extra ones (e.g. a store collector).
func NewRegistry(extra ...prometheus.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	all := append(Collectors(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range append(all, extra...) {
		if c == nil {
			continue
		}
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return reg, nil
}
