// Package health checks the dependencies the service needs to answer
// requests.
package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"pickings/internal/metrics"
	"pickings/internal/store"
)

// Statuses
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Latency above which a responding dependency is reported degraded
const (
	StoreDegradedAfter = 2 * time.Second
	RedisDegradedAfter = 100 * time.Millisecond
)

// Dependency is the check result of one dependency.
type Dependency struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Message   string `json:"message,omitempty"`
}

// Report is the aggregated health.
type Report struct {
	Status       string                `json:"status"`
	Dependencies map[string]Dependency `json:"dependencies"`
}

// Pinger is satisfied by the SQL database manager.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Checker checks the store and, when configured, redis and the database.
type Checker struct {
	store      store.Store
	checkTable string
	redis      redis.UniversalClient
	db         Pinger
	metrics    *metrics.Metrics
}

// Option configures a Checker.
type Option func(*Checker)

// WithRedis adds a redis check.
func WithRedis(client redis.UniversalClient) Option {
	return func(c *Checker) { c.redis = client }
}

// WithDatabase adds a database check.
func WithDatabase(db Pinger) Option {
	return func(c *Checker) { c.db = db }
}

// WithMetrics mirrors check results into the health gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// NewChecker checks st by reading the header of checkTable.
func NewChecker(st store.Store, checkTable string, opts ...Option) *Checker {
	c := &Checker{store: st, checkTable: checkTable}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs every check. A quota error counts as degraded: the store is
// reachable but throttling.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{Status: StatusOK, Dependencies: map[string]Dependency{}}

	report.add("store", check(StoreDegradedAfter, func() error {
		_, err := c.store.Header(ctx, c.checkTable)
		return err
	}, store.IsQuotaExceeded))

	if c.redis != nil {
		report.add("redis", check(RedisDegradedAfter, func() error {
			return c.redis.Ping(ctx).Err()
		}, nil))
	}
	if c.db != nil {
		report.add("database", check(StoreDegradedAfter, func() error {
			return c.db.HealthCheck(ctx)
		}, nil))
	}

	for name, dep := range report.Dependencies {
		c.metrics.SetHealth(name, dep.Status != StatusError)
	}
	return report
}

func (r *Report) add(name string, dep Dependency) {
	r.Dependencies[name] = dep
	switch {
	case dep.Status == StatusError:
		r.Status = StatusError
	case dep.Status == StatusDegraded && r.Status == StatusOK:
		r.Status = StatusDegraded
	}
}

func check(threshold time.Duration, fn func() error, degraded func(error) bool) Dependency {
	start := time.Now()
	err := fn()
	latency := time.Since(start)

	dep := Dependency{Status: StatusOK, LatencyMs: latency.Milliseconds()}
	switch {
	case err != nil && degraded != nil && degraded(err):
		dep.Status = StatusDegraded
		dep.Message = err.Error()
	case err != nil:
		dep.Status = StatusError
		dep.Message = err.Error()
	case latency > threshold:
		dep.Status = StatusDegraded
		dep.Message = "response time is above threshold"
	}
	return dep
}
