package ledger

import (
	"github.com/prometheus/client_golang/prometheus"

	"blogpilot/internal/domain"
)

// Metrics counts ledger activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	granted    *prometheus.CounterVec
	deducted   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	replays    prometheus.Counter
}

// NewMetrics creates the ledger collectors and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		granted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogpilot_credits_granted_total",
			Help: "Credits added to user balances.",
		}, []string{"currency", "reason"}),
		deducted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogpilot_credits_deducted_total",
			Help: "Credits removed from user balances.",
		}, []string{"currency", "feature"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogpilot_ledger_rejections_total",
			Help: "Ledger mutations rejected before commit.",
		}, []string{"reason"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogpilot_ledger_replays_total",
			Help: "Idempotent ledger requests answered from a stored row.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.granted, m.deducted, m.rejections, m.replays)
	}
	return m
}

func (m *Metrics) observe(tx domain.CreditTransaction) {
	if m == nil {
		return
	}
	switch {
	case tx.Delta > 0:
		reason := tx.Reason
		if tx.Kind == domain.KindRefund || tx.Kind == domain.KindAdjust {
			reason = string(tx.Kind)
		}
		m.granted.WithLabelValues(string(tx.Currency), reason).Add(float64(tx.Delta))
	case tx.Delta < 0:
		feature := tx.Feature
		if feature == "" {
			feature = string(tx.Kind)
		}
		m.deducted.WithLabelValues(string(tx.Currency), feature).Add(float64(-tx.Delta))
	}
}

func (m *Metrics) reject(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) replay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}
