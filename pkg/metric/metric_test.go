package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetConnected(true)
		m.AlarmCycle(ResultOK, 3)
		m.ReadError("alarm", "coil")
		m.ScanChunk("coil", ResultOK)
		m.ScanFinished(1)
		m.SamplesLogged(2)
		m.LoggerFailure("read")
		m.Publish("alarms", ResultOK)
	})
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.SetConnected(true)
	m.AlarmCycle(ResultOK, 2)
	m.AlarmCycle(ResultSkipped, 0)
	m.ScanChunk("coil", ResultError)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionUp))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveAlarms))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScanChunks.WithLabelValues("coil", ResultError)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "datapulse_alarm_cycles_total")
}
