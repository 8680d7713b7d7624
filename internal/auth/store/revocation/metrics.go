package revocation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks revocation-list latency. A nil *Metrics records nothing.
type Metrics struct {
	isRevokedDurationMs prometheus.Histogram
	revocations         prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		isRevokedDurationMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitpass_is_token_revoked_duration_ms",
			Help:    "Latency of token revocation checks in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
		revocations: f.NewCounter(prometheus.CounterOpts{
			Name: "transitpass_tokens_revoked_total",
			Help: "Access tokens revoked by logout",
		}),
	}
}

func (m *Metrics) observeIsRevoked(start time.Time) {
	if m == nil {
		return
	}
	m.isRevokedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

func (m *Metrics) incrementRevocations() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}
