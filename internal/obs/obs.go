// Package obs carries this module's ambient observability: Prometheus
// counters/histograms for the AK cache, token refreshes, and share/
// revoke calls, following sage's internal/metrics package (promauto
// counter/histogram vectors registered against a package-local
// registry). Core packages depend only on the Recorder interface, so
// a caller that doesn't want metrics gets NoopRecorder for free.
package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "e3db"

// Registry is this package's private Prometheus registry. This package
// does not serve it over HTTP.
var Registry = prometheus.NewRegistry()

var (
	akCacheHits = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "akcache",
		Name:      "hits_total",
		Help:      "Access key cache hits.",
	})
	akCacheMisses = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "akcache",
		Name:      "misses_total",
		Help:      "Access key cache misses requiring a server round trip.",
	})
	eakFetchDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "akcache",
		Name:      "eak_fetch_duration_seconds",
		Help:      "Latency of EAK fetches from the external collaborator.",
		Buckets:   prometheus.DefBuckets,
	})
	tokenRefreshes = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "token_refresh_total",
		Help:      "Bearer token refreshes, labeled by outcome.",
	}, []string{"outcome"})
	shareCalls = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "share",
		Name:      "calls_total",
		Help:      "Share/revoke/authorizer calls, labeled by operation.",
	}, []string{"operation"})
)

// Recorder is the capability akcache and auth optionally report
// through. A nil Recorder is never passed around; use NoopRecorder or
// PrometheusRecorder{}. ShareCall is part of the interface, but the
// share package takes no Recorder and nothing in this module calls it.
type Recorder interface {
	AKCacheHit()
	AKCacheMiss()
	EAKFetchDuration(d time.Duration)
	TokenRefresh(outcome string)
	ShareCall(operation string)
}

// NoopRecorder discards everything. It is the default when a caller
// doesn't wire in observability.
type NoopRecorder struct{}

func (NoopRecorder) AKCacheHit()                    {}
func (NoopRecorder) AKCacheMiss()                   {}
func (NoopRecorder) EAKFetchDuration(time.Duration) {}
func (NoopRecorder) TokenRefresh(string)            {}
func (NoopRecorder) ShareCall(string)               {}

// PrometheusRecorder records into this package's Registry.
type PrometheusRecorder struct{}

func (PrometheusRecorder) AKCacheHit()  { akCacheHits.Inc() }
func (PrometheusRecorder) AKCacheMiss() { akCacheMisses.Inc() }
func (PrometheusRecorder) EAKFetchDuration(d time.Duration) {
	eakFetchDuration.Observe(d.Seconds())
}
func (PrometheusRecorder) TokenRefresh(outcome string) { tokenRefreshes.WithLabelValues(outcome).Inc() }
func (PrometheusRecorder) ShareCall(operation string)  { shareCalls.WithLabelValues(operation).Inc() }
