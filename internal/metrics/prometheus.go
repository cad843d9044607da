package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "energy_agent"

// Prometheus is a Recorder backed by its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	chatOutcomes    *prometheus.CounterVec
	rateLimited     prometheus.Counter
	limiterFallback *prometheus.CounterVec
	upstreamRetries *prometheus.CounterVec
}

// NewPrometheus registers the application collectors plus the Go and
// process collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"method", "route"},
		),
		chatOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "requests_total",
				Help:      "Chat requests by outcome and error code.",
			},
			[]string{"outcome", "code"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "rate_limited_total",
				Help:      "Chat requests rejected by the per-user rate limit.",
			},
		),
		limiterFallback: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "fallback_total",
				Help:      "Rate limit decisions made by the fallback path.",
			},
			[]string{"mode"},
		),
		upstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "inference",
				Name:      "retries_total",
				Help:      "Retried inference calls by upstream status (0 for transport errors).",
			},
			[]string{"status"},
		),
	}
	p.registry.MustRegister(
		p.httpRequests,
		p.httpDuration,
		p.chatOutcomes,
		p.rateLimited,
		p.limiterFallback,
		p.upstreamRetries,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *Prometheus) IncChatOutcome(outcome, code string) {
	if code == "" {
		code = "none"
	}
	p.chatOutcomes.WithLabelValues(outcome, code).Inc()
}

func (p *Prometheus) IncRateLimited() {
	p.rateLimited.Inc()
}

func (p *Prometheus) IncLimiterFallback(mode string) {
	p.limiterFallback.WithLabelValues(mode).Inc()
}

func (p *Prometheus) IncUpstreamRetry(status int) {
	p.upstreamRetries.WithLabelValues(strconv.Itoa(status)).Inc()
}
