package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.SetActive(3, 2)
	m.IncJoin()
	m.IncJoin()
	m.IncDenial("access")
	m.AddDeliveries("codeUpdate", 4)
	m.AddDeliveries("codeUpdate", 0)
	m.IncDroppedSend()

	assert.Equal(t, float64(3), testutil.ToFloat64(m.connections))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.rooms))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.joins))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.denials.WithLabelValues("access")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.broadcasts.WithLabelValues("codeUpdate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.droppedSends))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetActive(1, 1)
		m.IncJoin()
		m.IncDenial("auth")
		m.AddDeliveries("x", 1)
		m.IncDroppedSend()
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncJoin()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "collab_joins_total 1")
}
