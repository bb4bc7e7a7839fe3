package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Store metrics
	StoreCallsTotal    *prometheus.CounterVec
	StoreRetriesTotal  *prometheus.CounterVec
	StoreCallDuration  *prometheus.HistogramVec

	// Workflow metrics
	StatusChangesTotal *prometheus.CounterVec
	ScansTotal         *prometheus.CounterVec
	ImportedRowsTotal  *prometheus.CounterVec

	// Cache metrics
	CacheLookupsTotal *prometheus.CounterVec

	// Health metrics
	HealthStatus *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StoreCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickings_store_calls_total",
				Help: "Total number of calls made against the tabular store",
			},
			[]string{"op", "result"},
		),
		StoreRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickings_store_retries_total",
				Help: "Total number of retries after a throttling error",
			},
			[]string{"op"},
		),
		StoreCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pickings_store_call_duration_seconds",
				Help:    "Duration of store calls including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		StatusChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickings_status_changes_total",
				Help: "Total folio status changes by target status",
			},
			[]string{"status"},
		),
		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickings_scans_total",
				Help: "Total scans by stage and outcome",
			},
			[]string{"stage", "result"},
		),
		ImportedRowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickings_imported_rows_total",
				Help: "Rows processed by bulk import",
			},
			[]string{"result"},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickings_cache_lookups_total",
				Help: "Cache lookups by cache name and outcome",
			},
			[]string{"cache", "result"},
		),

		HealthStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pickings_health_status",
				Help: "Health status of dependencies (1=ok, 0=down)",
			},
			[]string{"dependency"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickings_http_requests_total",
				Help: "Total number of API requests by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pickings_http_request_duration_seconds",
				Help:    "Histogram of request durations by method and route",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

// InitializeMetrics registers the metrics on the default registerer and sets
// starting values.
func InitializeMetrics() *Metrics {
	metrics := NewMetrics(prometheus.DefaultRegisterer)

	metrics.HealthStatus.WithLabelValues("store").Set(0)
	metrics.HealthStatus.WithLabelValues("redis").Set(0)

	return metrics
}

// StoreCall records the outcome of one store operation.
func (m *Metrics) StoreCall(op string, err error, seconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreCallsTotal.WithLabelValues(op, result).Inc()
	m.StoreCallDuration.WithLabelValues(op).Observe(seconds)
}

// StoreRetry records one retry of op.
func (m *Metrics) StoreRetry(op string) {
	if m == nil {
		return
	}
	m.StoreRetriesTotal.WithLabelValues(op).Inc()
}

// StatusChanged records a folio moving to status.
func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.StatusChangesTotal.WithLabelValues(status).Inc()
}

// Scan records a scan at stage ("reception" or "capture") with its result.
func (m *Metrics) Scan(stage, result string) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(stage, result).Inc()
}

// Imported records added and skipped import rows.
func (m *Metrics) Imported(added, skipped int) {
	if m == nil {
		return
	}
	m.ImportedRowsTotal.WithLabelValues("added").Add(float64(added))
	m.ImportedRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// CacheLookup records a hit or miss on the named cache.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// SetHealth sets the health gauge of dependency.
func (m *Metrics) SetHealth(dependency string, ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.HealthStatus.WithLabelValues(dependency).Set(v)
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
