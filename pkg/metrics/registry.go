package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry manages all Prometheus metrics for the ALHS service.
type Registry struct {
	config   Config
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec
	httpActiveRequests  *prometheus.GaugeVec

	// Compilation metrics
	compileStagesTotal  *prometheus.CounterVec
	compileStageDuration *prometheus.HistogramVec
	compileActiveCount  prometheus.Gauge
	compileStreamSize   prometheus.Histogram

	// Run / dispatch metrics
	runsTotal        *prometheus.CounterVec
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchRetries  *prometheus.CounterVec
	activeRuns       prometheus.Gauge
	journalEntries   prometheus.Gauge

	// Archive metrics
	archiveOpsTotal    *prometheus.CounterVec
	archiveOpDuration  *prometheus.HistogramVec

	// Integration metrics
	integrationCallsTotal   *prometheus.CounterVec
	integrationCallDuration *prometheus.HistogramVec
	integrationCircuitState *prometheus.GaugeVec
	integrationRetryCount   *prometheus.CounterVec
	integrationErrors       *prometheus.CounterVec
}

// Global registry instance
var (
	globalRegistry *Registry
	once           sync.Once
)

// NewRegistry creates a new metrics registry with the given configuration.
func NewRegistry(config Config) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		config:   config,
		registry: reg,
	}

	r.registerHTTPMetrics()
	r.registerCompileMetrics()
	r.registerRunMetrics()
	r.registerArchiveMetrics()
	r.registerIntegrationMetrics()

	// Register process and runtime metrics if enabled
	if config.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if config.EnableRuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}

	return r
}

// Global returns the global registry instance, initializing it with default config if needed.
func Global() *Registry {
	once.Do(func() {
		globalRegistry = NewRegistry(DefaultConfig())
	})
	return globalRegistry
}

// SetGlobal sets the global registry instance.
func SetGlobal(r *Registry) {
	globalRegistry = r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.config
}

func (r *Registry) registerHTTPMetrics() {
	ns := r.config.Namespace

	r.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status_code"},
	)

	r.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   r.config.HistogramBuckets.HTTPDuration,
		},
		[]string{"method", "path"},
	)

	r.httpRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   r.config.HistogramBuckets.HTTPSize,
		},
		[]string{"method", "path"},
	)

	r.httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   r.config.HistogramBuckets.HTTPSize,
		},
		[]string{"method", "path"},
	)

	r.httpActiveRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests",
		},
		[]string{"method", "path"},
	)

	r.registry.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.httpRequestSize,
		r.httpResponseSize,
		r.httpActiveRequests,
	)
}

func (r *Registry) registerCompileMetrics() {
	ns := r.config.Namespace

	r.compileStagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "compile",
			Name:      "stages_total",
			Help:      "Total number of compilation stages executed",
		},
		[]string{"stage", "status"},
	)

	r.compileStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "compile",
			Name:      "stage_duration_seconds",
			Help:      "Compilation stage duration in seconds",
			Buckets:   r.config.HistogramBuckets.CompileDuration,
		},
		[]string{"stage"},
	)

	r.compileActiveCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "compile",
			Name:      "active_count",
			Help:      "Number of compilations currently in flight",
		},
	)

	r.compileStreamSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "compile",
			Name:      "stream_commands",
			Help:      "Number of commands in a compiled stream",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	r.registry.MustRegister(
		r.compileStagesTotal,
		r.compileStageDuration,
		r.compileActiveCount,
		r.compileStreamSize,
	)
}

func (r *Registry) registerRunMetrics() {
	ns := r.config.Namespace

	r.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "completed_total",
			Help:      "Total number of runs by terminal state",
		},
		[]string{"state"},
	)

	r.dispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "dispatches_total",
			Help:      "Total number of command dispatch attempts",
		},
		[]string{"device", "outcome"},
	)

	r.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "dispatch_duration_seconds",
			Help:      "Command dispatch-to-acknowledgement round-trip in seconds",
			Buckets:   r.config.HistogramBuckets.DispatchDuration,
		},
		[]string{"device"},
	)

	r.dispatchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "dispatch_retries_total",
			Help:      "Total number of command dispatch retries",
		},
		[]string{"device"},
	)

	r.activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "active",
			Help:      "Number of runs currently executing",
		},
	)

	r.journalEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "journal_entries",
			Help:      "Number of retained journal entries for the active run",
		},
	)

	r.registry.MustRegister(
		r.runsTotal,
		r.dispatchesTotal,
		r.dispatchDuration,
		r.dispatchRetries,
		r.activeRuns,
		r.journalEntries,
	)
}

func (r *Registry) registerArchiveMetrics() {
	ns := r.config.Namespace

	r.archiveOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "archive",
			Name:      "operations_total",
			Help:      "Total number of run-archive operations",
		},
		[]string{"operation", "status"},
	)

	r.archiveOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "archive",
			Name:      "operation_duration_seconds",
			Help:      "Run-archive operation duration in seconds",
			Buckets:   r.config.HistogramBuckets.ArchiveDuration,
		},
		[]string{"operation"},
	)

	r.registry.MustRegister(
		r.archiveOpsTotal,
		r.archiveOpDuration,
	)
}

func (r *Registry) registerIntegrationMetrics() {
	ns := r.config.Namespace

	r.integrationCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "integration",
			Name:      "calls_total",
			Help:      "Total number of external API calls",
		},
		[]string{"service_name", "endpoint", "status_code"},
	)

	r.integrationCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "integration",
			Name:      "call_duration_seconds",
			Help:      "External API call duration in seconds",
			Buckets:   r.config.HistogramBuckets.IntegrationDuration,
		},
		[]string{"service_name", "endpoint"},
	)

	r.integrationCircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "integration",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service_name", "state"},
	)

	r.integrationRetryCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "integration",
			Name:      "retries_total",
			Help:      "Total number of retry attempts for external API calls",
		},
		[]string{"service_name", "endpoint"},
	)

	r.integrationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "integration",
			Name:      "errors_total",
			Help:      "Total number of integration errors",
		},
		[]string{"service_name", "endpoint", "error_type"},
	)

	r.registry.MustRegister(
		r.integrationCallsTotal,
		r.integrationCallDuration,
		r.integrationCircuitState,
		r.integrationRetryCount,
		r.integrationErrors,
	)
}
