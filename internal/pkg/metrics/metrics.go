package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extgate_calls_total",
		Help: "Outbound calls by service, endpoint and outcome",
	}, []string{"service", "endpoint", "outcome"})

	CallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extgate_call_latency_seconds",
		Help:    "Outbound transport latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "endpoint"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extgate_cache_lookups_total",
		Help: "Cache lookups by result (hit, miss, disabled, error)",
	}, []string{"service", "endpoint", "result"})

	AuditRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extgate_audit_records_total",
		Help: "Audit records persisted or failed, by store",
	}, []string{"store", "status"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extgate_events_dropped_total",
		Help: "Events dropped because the dispatch queue was full",
	}, []string{"kind"})

	ErrorsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extgate_errors_reported_total",
		Help: "Errors absorbed internally and reported to the operator",
	}, []string{"type"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extgate_http_latency_seconds",
		Help:    "Inbound admin API latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
