package sink

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vantablack-labs/arbengine"
)

// MetricsSink exposes the engine's event stream as Prometheus gauges
// and counters, grounded on the same promauto-registered-vectors
// pattern the ocx-backend escrow package uses for its Economic
// Barrier metrics, applied here to spreads/executions/errors instead
// of entropy/tax/reputation.
type MetricsSink struct {
	eventsTotal    *prometheus.CounterVec
	grossProfitUSD *prometheus.HistogramVec
	netProfitUSD   *prometheus.HistogramVec
	lastHeight     prometheus.Gauge
}

// NewMetricsSink builds and registers the engine's metric vectors
// against the default Prometheus registry.
func NewMetricsSink() *MetricsSink {
	return &MetricsSink{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbengine_events_total",
				Help: "Total structured events emitted, by kind.",
			},
			[]string{"kind"},
		),
		grossProfitUSD: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbengine_gross_profit_usd",
				Help:    "Gross profit in USD observed at spread/execution time.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"kind"},
		),
		netProfitUSD: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbengine_net_profit_usd",
				Help:    "Net profit in USD after gas, observed at execution time.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"kind"},
		),
		lastHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arbengine_last_event_height",
			Help: "Block height of the most recently observed event.",
		}),
	}
}

// Record updates the registered vectors for evt.
func (m *MetricsSink) Record(evt arbengine.Event) {
	m.eventsTotal.WithLabelValues(string(evt.Kind)).Inc()
	m.grossProfitUSD.WithLabelValues(string(evt.Kind)).Observe(evt.GrossUSD)
	if evt.Kind == arbengine.EventExecution {
		m.netProfitUSD.WithLabelValues(string(evt.Kind)).Observe(evt.NetUSD)
	}
	if evt.Height > 0 {
		m.lastHeight.Set(float64(evt.Height))
	}
}

// Handler returns the standard promhttp handler to mount at /metrics.
func (m *MetricsSink) Handler() http.Handler {
	return promhttp.Handler()
}
