package observe

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors fed by the Prometheus observer.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RetriesTotal     *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	CacheInvalidated prometheus.Counter
	RefreshTotal     *prometheus.CounterVec
	LogoutsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiclient",
				Name:      "requests_total",
				Help:      "Total number of logical requests completed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apiclient",
				Name:      "request_duration_seconds",
				Help:      "Logical request duration in seconds, retries included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RetriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiclient",
				Name:      "retries_total",
				Help:      "Total number of re-dispatched requests",
			},
			[]string{"reason"}, // reason=network/timeout/server/auth
		),
		CacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiclient",
				Name:      "cache_lookups_total",
				Help:      "Response cache lookups",
			},
			[]string{"result"}, // result=hit/miss
		),
		CacheInvalidated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "apiclient",
				Name:      "cache_invalidated_total",
				Help:      "Cache entries removed by tag invalidation",
			},
		),
		RefreshTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiclient",
				Name:      "refresh_total",
				Help:      "Credential refresh outcomes",
			},
			[]string{"result"}, // result=success/failure
		),
		LogoutsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiclient",
				Name:      "logouts_total",
				Help:      "Sessions ended, by reason",
			},
			[]string{"reason"},
		),
	}
}

// Observe implements Observer.
func (m *Metrics) Observe(e Event) {
	switch e.Kind {
	case KindRequest:
		status := "error"
		if e.Status != 0 {
			status = strconv.Itoa(e.Status)
		}
		m.RequestsTotal.WithLabelValues(e.Method, status).Inc()
		m.RequestDuration.WithLabelValues(e.Method).Observe(e.Duration.Seconds())
	case KindRetry:
		m.RetriesTotal.WithLabelValues(e.Reason).Inc()
	case KindCacheHit:
		m.CacheLookups.WithLabelValues("hit").Inc()
	case KindCacheMiss:
		m.CacheLookups.WithLabelValues("miss").Inc()
	case KindCacheInvalidate:
		m.CacheInvalidated.Add(float64(e.Count))
	case KindRefreshSucceeded:
		m.RefreshTotal.WithLabelValues("success").Inc()
	case KindRefreshFailed:
		m.RefreshTotal.WithLabelValues("failure").Inc()
	case KindLogout:
		m.LogoutsTotal.WithLabelValues(e.Reason).Inc()
	}
}
