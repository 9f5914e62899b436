package sink

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Publish(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.Publish("steering.rudderAngle", 0.1, NewMetadata("rad", "Rudder Angle"))
	p.Publish("steering.rudderAngle", 0.2, NewMetadata("rad", "Rudder Angle"))

	assert.Equal(t, 0.2, testutil.ToFloat64(p.value.WithLabelValues("steering.rudderAngle", "rad", "Rudder Angle")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.updates.WithLabelValues("steering.rudderAngle")))
}

func TestPrometheus_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg)
	require.NoError(t, err)
	_, err = NewPrometheus(reg)
	assert.Error(t, err)
}

func TestHandler_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)
	p.Publish("environment.inside.aftBilge.temperature", 291.15, NewMetadata("K", ""))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parser expfmt.TextParser
	var families map[string]*dto.MetricFamily
	families, err = parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)

	fam, ok := families["sensepipe_value"]
	require.True(t, ok)
	require.Len(t, fam.GetMetric(), 1)

	m := fam.GetMetric()[0]
	assert.Equal(t, 291.15, m.GetGauge().GetValue())
	labels := labelMap(m)
	assert.Equal(t, "environment.inside.aftBilge.temperature", labels["path"])
	assert.Equal(t, "K", labels["units"])
}

func labelMap(m *dto.Metric) map[string]string {
	labels := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	return labels
}
