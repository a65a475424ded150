package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

// CartMetrics exports cart session lifecycle counters and the latest snapshot.
type CartMetrics struct {
	upserts     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	sessions    *prometheus.GaugeVec
	value       *prometheus.GaugeVec
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	upserts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "cart",
		Name:      "upserts_total",
		Help:      "Track and update requests by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "cart",
		Name:      "transitions_total",
		Help:      "Cart session state transitions.",
	}, []string{"from", "to"})
	sessions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "cart",
		Name:      "sessions",
		Help:      "Cart sessions per state at the last stats computation.",
	}, []string{"state"})
	value := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "cart",
		Name:      "open_value_minor_units",
		Help:      "Summed cart value of live sessions at the last stats computation.",
	}, []string{"state"})
	reg.MustRegister(upserts, transitions, sessions, value)
	return &CartMetrics{
		upserts:     upserts,
		transitions: transitions,
		sessions:    sessions,
		value:       value,
	}
}

func (m *CartMetrics) ObserveUpsert(outcome string) {
	if m == nil || m.upserts == nil {
		return
	}
	m.upserts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CartMetrics) ObserveTransition(from, to enums.CartSessionState) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from.String()), normalizeLabel(to.String())).Inc()
}

func (m *CartMetrics) ObserveSnapshot(countByState map[enums.CartSessionState]int, abandonedValue, activeValue int64) {
	if m == nil || m.sessions == nil {
		return
	}
	for _, state := range enums.CartSessionStates() {
		m.sessions.WithLabelValues(state.String()).Set(float64(countByState[state]))
	}
	m.value.WithLabelValues(enums.CartSessionStateAbandoned.String()).Set(float64(abandonedValue))
	m.value.WithLabelValues(enums.CartSessionStateActive.String()).Set(float64(activeValue))
}
