package sink

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exposes the latest value of every telemetry path as a gauge.
type Prometheus struct {
	value   *prometheus.GaugeVec
	updates *prometheus.CounterVec
}

// NewPrometheus registers the sink's collectors on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		value: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sensepipe",
				Name:      "value",
				Help:      "Latest value published by a sensor pipeline.",
			},
			[]string{"path", "units", "label"},
		),
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sensepipe",
				Name:      "updates_total",
				Help:      "Number of values published per telemetry path.",
			},
			[]string{"path"},
		),
	}
	for _, c := range []prometheus.Collector{p.value, p.updates} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "sink: register prometheus collector")
		}
	}
	return p, nil
}

// Publish sets the gauge for path.
func (p *Prometheus) Publish(path string, value float64, meta Metadata) {
	p.value.WithLabelValues(path, meta.Units(), meta.Label()).Set(value)
	p.updates.WithLabelValues(path).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}
