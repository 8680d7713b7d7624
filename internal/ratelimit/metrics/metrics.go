package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected   *prometheus.CounterVec
	StoreFails prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transitpass_rate_limit_rejected_total",
			Help: "Requests rejected with 429, by endpoint class",
		}, []string{"class"}),
		StoreFails: f.NewCounter(prometheus.CounterOpts{
			Name: "transitpass_rate_limit_store_errors_total",
			Help: "Rate limit checks that failed open because the bucket store errored",
		}),
	}
}

func (m *Metrics) IncRejected(class string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(class).Inc()
}

func (m *Metrics) IncStoreFailure() {
	if m == nil {
		return
	}
	m.StoreFails.Inc()
}
