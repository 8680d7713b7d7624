package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for order creation and payment verification. A nil *Metrics is a no-op.
type Metrics struct {
	OrdersCreated       *prometheus.CounterVec
	PaymentsVerified    *prometheus.CounterVec
	VerifyFailures      *prometheus.CounterVec
	ProviderErrors      prometheus.Counter
	NotificationsFailed prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transitpass_payment_orders_created_total",
			Help: "Provider orders attached to a pass or renewal",
		}, []string{"kind"}),
		PaymentsVerified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transitpass_payment_verified_total",
			Help: "Payments applied, labelled by record kind",
		}, []string{"kind"}),
		VerifyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transitpass_payment_verify_failures_total",
			Help: "Rejected verification attempts by error code",
		}, []string{"code"}),
		ProviderErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "transitpass_payment_provider_errors_total",
			Help: "Failed calls to the payment provider",
		}),
		NotificationsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "transitpass_payment_notifications_failed_total",
			Help: "Payment notifications that could not be delivered",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transitpass_payment_operation_duration_seconds",
			Help:    "Duration of payment operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementOrdersCreated(kind string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementPaymentsVerified(kind string) {
	if m == nil {
		return
	}
	m.PaymentsVerified.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementVerifyFailures(code string) {
	if m == nil {
		return
	}
	m.VerifyFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) IncrementProviderErrors() {
	if m == nil {
		return
	}
	m.ProviderErrors.Inc()
}

func (m *Metrics) IncrementNotificationsFailed() {
	if m == nil {
		return
	}
	m.NotificationsFailed.Inc()
}

func (m *Metrics) ObserveOperation(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
