package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.StoreCall("find", nil, 0.01)
	m.StoreCall("find", errors.New("boom"), 0.02)
	m.StoreRetry("find")
	m.Scan("capture", "duplicate")
	m.Imported(3, 2)
	m.CacheLookup("folios", true)
	m.SetHealth("store", true)
	m.HTTPRequest("GET", "/api/folios", 200, 0.05)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreCallsTotal.WithLabelValues("find", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreCallsTotal.WithLabelValues("find", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreRetriesTotal.WithLabelValues("find")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("capture", "duplicate")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ImportedRowsTotal.WithLabelValues("added")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ImportedRowsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("folios", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthStatus.WithLabelValues("store")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/folios", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.StoreCall("find", nil, 0)
		m.StoreRetry("find")
		m.StatusChanged("IMPRESOS")
		m.Scan("reception", "ok")
		m.Imported(1, 1)
		m.CacheLookup("users", false)
		m.SetHealth("redis", false)
		m.HTTPRequest("GET", "/healthz", 503, 0)
	})
}
