// Package metrics exposes authgate's Prometheus metrics.
//
// A Registry implements session.Observer and gate.Observer, and collects the
// session cache counters on scrape.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"authgate/cmd/internal/auth/gate"
	"authgate/cmd/internal/auth/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authgate"

// CacheStatser is satisfied by *session.Cache.
type CacheStatser interface {
	Stats() session.CacheStats
}

// Registry holds every application metric.
type Registry struct {
	reg *prometheus.Registry

	sessionsCreated prometheus.Counter
	sessionsRevoked *prometheus.CounterVec
	rotations       *prometheus.CounterVec
	discrepancies   *prometheus.CounterVec
	lastRebuildSize prometheus.Gauge
	lastRebuildTime prometheus.Gauge

	gateDecisions *prometheus.CounterVec

	requestDuration *prometheus.HistogramVec
}

// New builds a registry. cache may be nil.
func New(cache CacheStatser) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions created by login, registration, OTP or OAuth",
		}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "revoked_total",
			Help:      "Sessions revoked, by reason",
		}, []string{"reason"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rotations_total",
			Help:      "Refresh token rotations, by result",
		}, []string{"result"}),
		discrepancies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "store_cache_discrepancies_total",
			Help:      "Revocations where the store write failed but the cache was evicted",
		}, []string{"op"}),
		lastRebuildSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session_cache",
			Name:      "last_rebuild_sessions",
			Help:      "Number of sessions loaded by the last cache rebuild",
		}),
		lastRebuildTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session_cache",
			Name:      "last_rebuild_timestamp_seconds",
			Help:      "Unix timestamp of the last cache rebuild",
		}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Request gate decisions, by outcome and reason",
		}, []string{"outcome", "reason", "rotated"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by method and status class",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "class"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.sessionsCreated,
		r.sessionsRevoked,
		r.rotations,
		r.discrepancies,
		r.lastRebuildSize,
		r.lastRebuildTime,
		r.gateDecisions,
		r.requestDuration,
	)
	if cache != nil {
		r.reg.MustRegister(newCacheCollector(cache))
	}
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) SessionCreated() { r.sessionsCreated.Inc() }

func (r *Registry) SessionsRevoked(reason string, n int) {
	if n <= 0 {
		return
	}
	r.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

func (r *Registry) RotationResult(result string) { r.rotations.WithLabelValues(result).Inc() }

func (r *Registry) Discrepancy(op string) { r.discrepancies.WithLabelValues(op).Inc() }

func (r *Registry) CacheRebuilt(n int) {
	r.lastRebuildSize.Set(float64(n))
	r.lastRebuildTime.SetToCurrentTime()
}

func (r *Registry) ObserveDecision(outcome, reason string, rotated bool) {
	if reason == "" {
		reason = "none"
	}
	r.gateDecisions.WithLabelValues(outcome, reason, strconv.FormatBool(rotated)).Inc()
}

// ObserveRequest records one served HTTP request.
func (r *Registry) ObserveRequest(method string, status int, d time.Duration) {
	r.requestDuration.WithLabelValues(method, statusClass(status)).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

var (
	_ session.Observer = (*Registry)(nil)
	_ gate.Observer    = (*Registry)(nil)
)
