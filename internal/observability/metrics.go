package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the central Prometheus registry surface for the core.
//
// Tracked series:
//   - Provider request counts and latency (provider, model, status)
//   - Tool execution counts and latency (tool, status)
//   - Canonical events emitted (type)
//   - Message-cache hits and misses
//   - Consumer-tool poll timeouts
//   - Active runs gauge
type Metrics struct {
	// ProviderRequests counts upstream calls.
	// Labels: provider, model, status (success|error).
	ProviderRequests *prometheus.CounterVec

	// ProviderLatency measures upstream stream duration in seconds.
	// Labels: provider, model.
	ProviderLatency *prometheus.HistogramVec

	// ToolExecutions counts platform/consumer tool dispatches.
	// Labels: tool, status (success|error|timeout).
	ToolExecutions *prometheus.CounterVec

	// ToolLatency measures tool execution time in seconds. Labels: tool.
	ToolLatency *prometheus.HistogramVec

	// EventsEmitted counts canonical events by type.
	EventsEmitted *prometheus.CounterVec

	// CacheHits and CacheMisses track the message cache. Labels: cache.
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// ConsumerTimeouts counts consumer polls that hit max_wait.
	ConsumerTimeouts prometheus.Counter

	// ActiveRuns tracks runs currently inside the orchestrator loop.
	ActiveRuns prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the given registerer.
// Passing nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promFactory{reg}

	return &Metrics{
		ProviderRequests: factory.counterVec("orchestrator_provider_requests_total",
			"Upstream provider requests.", []string{"provider", "model", "status"}),
		ProviderLatency: factory.histogramVec("orchestrator_provider_latency_seconds",
			"Upstream provider stream duration.",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, []string{"provider", "model"}),
		ToolExecutions: factory.counterVec("orchestrator_tool_executions_total",
			"Tool dispatches.", []string{"tool", "status"}),
		ToolLatency: factory.histogramVec("orchestrator_tool_latency_seconds",
			"Tool execution duration.",
			[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}, []string{"tool"}),
		EventsEmitted: factory.counterVec("orchestrator_events_emitted_total",
			"Canonical stream events emitted.", []string{"type"}),
		CacheHits: factory.counterVec("orchestrator_cache_hits_total",
			"Cache hits.", []string{"cache"}),
		CacheMisses: factory.counterVec("orchestrator_cache_misses_total",
			"Cache misses.", []string{"cache"}),
		ConsumerTimeouts: factory.counter("orchestrator_consumer_timeouts_total",
			"Consumer tool polls that exceeded max_wait."),
		ActiveRuns: factory.gauge("orchestrator_active_runs",
			"Runs currently being driven."),
	}
}

// NopMetrics returns metrics registered on a throwaway registry, for tests
// and for embedders that do not scrape.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// promFactory mirrors promauto but against an explicit registerer, which
// keeps repeated NewMetrics calls in tests from colliding.
type promFactory struct {
	reg prometheus.Registerer
}

func (f promFactory) counterVec(name, help string, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	f.reg.MustRegister(c)
	return c
}

func (f promFactory) counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	f.reg.MustRegister(c)
	return c
}

func (f promFactory) histogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	f.reg.MustRegister(h)
	return h
}

func (f promFactory) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	f.reg.MustRegister(g)
	return g
}
