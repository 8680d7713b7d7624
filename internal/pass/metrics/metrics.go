package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the pass ledger.
// Tracks applications, admin decisions, expiry flips and ledger operation latency.
type Metrics struct {
	PassesApplied       prometheus.Counter
	RenewalsApplied     prometheus.Counter
	Decisions           *prometheus.CounterVec
	PassesExpired       prometheus.Counter
	NotificationsFailed prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
}

// New registers the ledger metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PassesApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "transitpass_passes_applied_total",
			Help: "Total number of new pass applications accepted",
		}),
		RenewalsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "transitpass_renewals_applied_total",
			Help: "Total number of renewal requests accepted",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transitpass_admin_decisions_total",
			Help: "Admin approve/reject decisions by record kind",
		}, []string{"kind", "decision"}),
		PassesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "transitpass_passes_expired_total",
			Help: "Passes deactivated by the expiry enforcer",
		}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "transitpass_notifications_failed_total",
			Help: "Best-effort notifications that could not be handed off",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transitpass_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementPassesApplied() {
	if m == nil {
		return
	}
	m.PassesApplied.Inc()
}

func (m *Metrics) IncrementRenewalsApplied() {
	if m == nil {
		return
	}
	m.RenewalsApplied.Inc()
}

// IncrementDecision records an admin decision; kind is "pass" or "renewal".
func (m *Metrics) IncrementDecision(kind, decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(kind, decision).Inc()
}

func (m *Metrics) IncrementPassesExpired() {
	if m == nil {
		return
	}
	m.PassesExpired.Inc()
}

func (m *Metrics) IncrementNotificationsFailed() {
	if m == nil {
		return
	}
	m.NotificationsFailed.Inc()
}

// ObserveOperation records the duration of a ledger operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
