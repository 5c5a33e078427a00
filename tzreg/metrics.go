package tzreg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts registry changes and match outcomes.
// A nil *Metrics records nothing.
type Metrics struct {
	DynamicEntries prometheus.Counter
	Reactivations  prometheus.Counter
	Removals       prometheus.Counter
	BestMatches    *prometheus.CounterVec
}

// NewMetrics creates the registry metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DynamicEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "synctz_registry_dynamic_entries_total",
			Help: "Total number of timezone rules appended to the registry",
		}),
		Reactivations: factory.NewCounter(prometheus.CounterOpts{
			Name: "synctz_registry_reactivations_total",
			Help: "Total number of removed timezone rules brought back by a find",
		}),
		Removals: factory.NewCounter(prometheus.CounterOpts{
			Name: "synctz_registry_removals_total",
			Help: "Total number of timezone rules marked as removed",
		}),
		BestMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "synctz_registry_best_match_total",
			Help: "Best match searches by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) addedEntries(n int) {
	if m == nil {
		return
	}
	m.DynamicEntries.Add(float64(n))
}

func (m *Metrics) reactivated() {
	if m == nil {
		return
	}
	m.Reactivations.Inc()
}

func (m *Metrics) removed() {
	if m == nil {
		return
	}
	m.Removals.Inc()
}

func (m *Metrics) bestMatch(outcome string) {
	if m == nil {
		return
	}
	m.BestMatches.WithLabelValues(outcome).Inc()
}
