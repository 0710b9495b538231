package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordScan("ok", time.Now(), 3)
		m.RecordSkip("too_small")
		m.RecordStorageError("save")
		m.RecordPlay()
		m.SetCatalogSize(10)
	})
}

func TestRecordersUpdateCollectors(t *testing.T) {
	m := NewMetrics()

	m.RecordScan("ok", time.Now(), 4)
	m.RecordSkip("too_short")
	m.RecordSkip("too_short")
	m.RecordPlay()
	m.SetCatalogSize(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TracksDiscovered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SourcesSkipped.WithLabelValues("too_short")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlaysTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.CatalogTracks))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordPlay()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "tunedeck_plays_total 1")
}
