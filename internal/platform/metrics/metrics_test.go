package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetrics(t *testing.T) {
	m := NewHTTP(NewRegistry())
	m.ObserveRequest("GET", "/api/status", 200, 20*time.Millisecond)
	m.ObserveRequest("GET", "/api/status", 200, 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/status", "200")))

	var nilMetrics *HTTPMetrics
	assert.NotPanics(t, func() { nilMetrics.ObserveRequest("GET", "/", 500, time.Second) })
}
