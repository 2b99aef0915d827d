// Package metrics provides Prometheus metrics for the showdown optimizer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

// Manager owns the optimizer metrics on a private registry. A nil *Manager
// records nothing.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	lineupsGenerated    *prometheus.CounterVec
	candidatesDiscarded *prometheus.CounterVec
	generations         *prometheus.CounterVec
	generationDuration  *prometheus.HistogramVec
	backfillRounds      prometheus.Histogram
	activeSessions      prometheus.Gauge
	progressEvents      *prometheus.CounterVec
	storeFallbacks      prometheus.Counter

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets the latency buckets, in seconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "showdown",
		buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.lineupsGenerated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "optimizer",
		Name:      "lineups_generated_total",
		Help:      "Lineups returned, by producing algorithm",
	}, []string{"algorithm"})

	m.candidatesDiscarded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "optimizer",
		Name:      "candidates_discarded_total",
		Help:      "Candidates dropped during generation, by reason",
	}, []string{"reason"})

	m.generations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "optimizer",
		Name:      "generations_total",
		Help:      "Generation requests by strategy and outcome",
	}, []string{"strategy", "outcome"})

	m.generationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "optimizer",
		Name:      "generation_duration_seconds",
		Help:      "Wall time of generation requests",
		Buckets:   m.buckets,
	}, []string{"strategy"})

	m.backfillRounds = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "optimizer",
		Name:      "backfill_rounds",
		Help:      "Backfill rounds needed per successful generation",
		Buckets:   []float64{0, 1, 2, 3, 5, 8},
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Open optimizer sessions",
	})

	m.progressEvents = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "sessions",
		Name:      "progress_events_total",
		Help:      "Progress events published, by phase",
	}, []string{"phase"})

	m.storeFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "fallbacks_total",
		Help:      "Lineup store calls served by the in-memory fallback",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   m.buckets,
	}, []string{"route", "method"})
}

// Registry exposes the private registry, mostly for tests.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Manager) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// ProgressPublished counts an event by the phase its status names.
func (m *Manager) ProgressPublished(status string) {
	if m == nil {
		return
	}
	m.progressEvents.WithLabelValues(phase(status)).Inc()
}

func phase(status string) string {
	switch {
	case strings.HasPrefix(status, "Error"):
		return "error"
	case strings.HasPrefix(status, "Generating"):
		return "generating"
	case strings.HasPrefix(status, "Scoring"):
		return "scoring"
	case strings.HasPrefix(status, "Selecting"):
		return "selecting"
	}
	switch status {
	case "Initializing", "Finalizing", "Completed", "Superseded":
		return strings.ToLower(status)
	}
	return "other"
}

// GenerationFinished records the outcome of one generation request.
func (m *Manager) GenerationFinished(strategy string, summary *optimizer.Summary, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = optimizer.KindName(err)
	} else if summary != nil && summary.Partial {
		outcome = "partial"
	}
	m.generations.WithLabelValues(strategy, outcome).Inc()
	m.generationDuration.WithLabelValues(strategy).Observe(took.Seconds())

	if summary == nil {
		return
	}
	for alg, n := range summary.ByAlgorithm {
		m.lineupsGenerated.WithLabelValues(string(alg)).Add(float64(n))
	}
	m.candidatesDiscarded.WithLabelValues("constraint").Add(float64(summary.Discarded))
	m.candidatesDiscarded.WithLabelValues("duplicate").Add(float64(summary.Duplicates))
	m.candidatesDiscarded.WithLabelValues("exposure").Add(float64(summary.ExposureRejects))
	m.candidatesDiscarded.WithLabelValues("repair_failed").Add(float64(summary.RepairFailures))
	m.backfillRounds.Observe(float64(summary.BackfillRounds))
}

// StoreFallback counts a lineup store call that bypassed redis.
func (m *Manager) StoreFallback() {
	if m == nil {
		return
	}
	m.storeFallbacks.Inc()
}

// HTTPRequest records one served request. route is the gin route template.
func (m *Manager) HTTPRequest(route, method string, status int, took time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(took.Seconds())
}
