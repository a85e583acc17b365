package ip

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newMetrics registers the attempt metrics on reg. A nil reg keeps them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		attempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gip_provider_attempts_total",
			Help: "Total number of provider attempts partitioned by result.",
		}, []string{"provider", "family", "result"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gip_provider_attempt_duration_seconds",
			Help:    "Duration of provider attempts as seen by the caller.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider", "family"}),
	}
}

func (m *metrics) observe(d Descriptor, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(d.Name, d.Family.String(), result(err)).Inc()
	m.duration.WithLabelValues(d.Name, d.Family.String()).Observe(elapsed.Seconds())
}

func result(err error) string {
	var timeout *TimeoutError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &timeout):
		return "timeout"
	default:
		return "error"
	}
}
