// Package metrics exposes two complementary views of engine activity:
// a rolling-window PerfMetrics sampler (spec.md §4) queried by
// get_performance_metrics(), and a Prometheus Registry for external
// scraping. Grounded on go-server-3/internal/metrics, but built on a
// dedicated *prometheus.Registry via promauto.With/promhttp.HandlerFor
// instead of the package-global DefaultRegisterer, so that running a
// master and slave role's metrics side by side (or constructing a
// Registry more than once in tests) never panics on duplicate
// registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the Prometheus collectors this engine exposes.
type Registry struct {
	reg *prometheus.Registry

	SessionsActive      prometheus.Gauge
	MessagesSent        prometheus.Counter
	MessagesDropped     prometheus.Counter
	MessagesCoalesced   prometheus.Counter
	BytesSent           prometheus.Counter
	ApplyFailures       prometheus.Counter
	DesyncAlerts        prometheus.Counter
	ReconnectAttempts   prometheus.Counter
	OBSRequestDuration   prometheus.Histogram
}

// NewRegistry constructs a fresh Registry backed by its own
// *prometheus.Registry (never the package-global DefaultRegisterer).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "obssync_sessions_active",
			Help: "Number of slave sessions currently connected to this master",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "obssync_messages_sent_total",
			Help: "Total number of sync messages sent to slaves",
		}),
		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "obssync_messages_dropped_total",
			Help: "Total number of sync messages dropped due to queue overflow",
		}),
		MessagesCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Name: "obssync_messages_coalesced_total",
			Help: "Total number of transform_update messages coalesced in place",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "obssync_bytes_sent_total",
			Help: "Total bytes of sync message payloads sent to slaves",
		}),
		ApplyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "obssync_apply_failures_total",
			Help: "Total number of updates the Applier failed to apply to local OBS",
		}),
		DesyncAlerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "obssync_desync_alerts_total",
			Help: "Total number of desync alerts raised by the Drift Detector",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "obssync_reconnect_attempts_total",
			Help: "Total number of slave reconnect attempts to the master",
		}),
		OBSRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "obssync_obs_request_duration_seconds",
			Help:    "Latency of OBS WebSocket request/response round trips",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler returns an HTTP handler exposing this Registry's collectors.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
