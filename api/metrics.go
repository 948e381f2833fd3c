package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RL96-hub/ParkingPass/allowance"
)

// Metrics owns a private registry so that several handlers (tests) can
// coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	passesIssued       *prometheus.CounterVec
	passesRejected     *prometheus.CounterVec
	paymentTransitions *prometheus.CounterVec
	partyDaysRestored  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkingpass",
			Name:      "passes_issued_total",
			Help:      "Passes issued, by pass type.",
		}, []string{"type"}),
		passesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkingpass",
			Name:      "passes_rejected_total",
			Help:      "Pass requests rejected, by reason.",
		}, []string{"reason"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkingpass",
			Name:      "payment_transitions_total",
			Help:      "Admin payment status changes, by target status.",
		}, []string{"to"}),
		partyDaysRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkingpass",
			Name:      "party_days_restored_total",
			Help:      "Party days appended by reconciliation.",
		}),
	}
	m.registry.MustRegister(
		m.passesIssued,
		m.passesRejected,
		m.paymentTransitions,
		m.partyDaysRestored,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) passIssued(t allowance.PassType) {
	m.passesIssued.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) passRejected(err error) {
	m.passesRejected.WithLabelValues(rejectionReason(err)).Inc()
}

func (m *Metrics) paymentChanged(to allowance.PaymentStatus) {
	m.paymentTransitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) partyDaysAppended(n int) {
	m.partyDaysRestored.Add(float64(n))
}

// rejectionReason keeps label cardinality bounded.
func rejectionReason(err error) string {
	_, code := classifyError(err)
	return code
}
