package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/eventlimit/internal/version"
)

// LimiterMetrics holds the process registry plus the limiter's decision and
// eviction counters. Incremented through the limiter's callbacks rather than
// a direct dependency, so the core stays metrics-free.
type LimiterMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	eventsAllowedTotal       prometheus.Counter
	eventsDroppedTotal       prometheus.Counter
	fingerprintsEvictedTotal prometheus.Counter
	fingerprintsTracked      prometheus.Gauge
	decisionDuration         prometheus.Histogram

	commandsTotal *prometheus.CounterVec

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + limiter metrics.
// Fingerprints never appear as label values: they are unbounded-cardinality.
func New() *LimiterMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &LimiterMetrics{
		eventsAllowedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_allowed_total",
			Help: "Total events passed through to the reporting backend",
		}),
		eventsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total events dropped because their issue exceeded its window budget",
		}),
		fingerprintsEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fingerprints_evicted_total",
			Help: "Total tracked fingerprints evicted (capacity pressure or idle sweep)",
		}),
		fingerprintsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fingerprints_tracked",
			Help: "Current number of tracked issue fingerprints",
		}),
		decisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "event_decision_duration_seconds",
			Help:    "Latency of a single allow/drop decision",
			Buckets: []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3},
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "demo_commands_total",
			Help: "Total demo commands handled, by command",
		}, []string{"command"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.eventsAllowedTotal,
		m.eventsDroppedTotal,
		m.fingerprintsEvictedTotal,
		m.fingerprintsTracked,
		m.decisionDuration,
		m.commandsTotal,
		m.buildInfo,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *LimiterMetrics) Handler() http.Handler {
	return m.handler
}

func (m *LimiterMetrics) IncAllowed() {
	m.eventsAllowedTotal.Inc()
}

func (m *LimiterMetrics) IncDropped() {
	m.eventsDroppedTotal.Inc()
}

func (m *LimiterMetrics) IncEvicted() {
	m.fingerprintsEvictedTotal.Inc()
}

func (m *LimiterMetrics) SetTracked(n int) {
	m.fingerprintsTracked.Set(float64(n))
}

func (m *LimiterMetrics) ObserveDecision(seconds float64) {
	m.decisionDuration.Observe(seconds)
}

func (m *LimiterMetrics) IncCommand(cmd string) {
	m.commandsTotal.WithLabelValues(cmd).Inc()
}

// set once at startup.
func (m *LimiterMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *LimiterMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
