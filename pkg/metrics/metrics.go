package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "bridge_relayer"

// Metrics owns a private registry so several processes can live in one test binary
type Metrics struct {
	registry   *prometheus.Registry
	relays     *prometheus.CounterVec
	lastBlock  *prometheus.GaugeVec
	lockdown   prometheus.Gauge
	violations prometheus.Counter
}

func New(process string) *Metrics {
	labels := prometheus.Labels{"process": process}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "relays_total",
			Help:        "Bridge events handled, by event kind and outcome",
			ConstLabels: labels,
		}, []string{"event", "status"}),
		lastBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_block",
			Help:        "Last block handled per source chain",
			ConstLabels: labels,
		}, []string{"chain"}),
		lockdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "lockdown",
			Help:        "1 once this process has triggered or observed a lockdown",
			ConstLabels: labels,
		}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "consistency_violations_total",
			Help:        "Settled transfers whose amount did not match their origin",
			ConstLabels: labels,
		}),
	}
	for _, collector := range []prometheus.Collector{m.relays, m.lastBlock, m.lockdown, m.violations} {
		if err := m.registry.Register(collector); err != nil {
			log.Error().Err(err).Msg("[Metrics] [New] failed to register metric")
		}
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The methods below accept a nil receiver so callers can run without metrics

func (m *Metrics) Relay(event string, status string) {
	if m == nil {
		return
	}
	m.relays.WithLabelValues(event, status).Inc()
}

func (m *Metrics) LastBlock(chain string, block uint64) {
	if m == nil {
		return
	}
	m.lastBlock.WithLabelValues(chain).Set(float64(block))
}

func (m *Metrics) Lockdown() {
	if m == nil {
		return
	}
	m.lockdown.Set(1)
}

func (m *Metrics) Violation() {
	if m == nil {
		return
	}
	m.violations.Inc()
}
