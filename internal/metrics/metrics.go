// Package metrics registers the Prometheus instruments recorded while
// parts are imported into a library.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the import metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "partkit").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for import duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the import metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// defaultConfig returns the default metrics configuration.
func defaultConfig() Config {
	return Config{
		Namespace:   "partkit",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// Status label values shared by imports_total and generator_runs_total.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// instruments holds the Prometheus metrics for partkit.
type instruments struct {
	importsTotal   *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	stepErrors     *prometheus.CounterVec
	generatorRuns  *prometheus.CounterVec
}

// global is the singleton instruments instance.
// Created on first call to Init().
var (
	global   *instruments
	globalMu sync.Mutex
)

// initInstruments builds and registers the Prometheus metrics.
func initInstruments(config Config) *instruments {
	factory := promauto.With(config.Registry)

	return &instruments{
		importsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "imports_total",
			Help:        "Total number of part imports by storage mode and outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"mode", "status"}),

		importDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "import_duration_seconds",
			Help:        "Import duration in seconds by storage mode",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"mode"}),

		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "import_step_errors_total",
			Help:        "Total number of import failures by pipeline step",
			ConstLabels: config.ConstLabels,
		}, []string{"step"}),

		generatorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "generator_runs_total",
			Help:        "Total number of artifact generator invocations by backend and outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"backend", "status"}),
	}
}

// Init registers the import metrics with the configured registry.
//
// Metrics collected:
//   - partkit_imports_total: Counter of imports by storage mode and status
//   - partkit_import_duration_seconds: Histogram of import duration by storage mode
//   - partkit_import_step_errors_total: Counter of import failures by pipeline step
//   - partkit_generator_runs_total: Counter of generator runs by backend and status
//
// Init is safe to call more than once; only the first call registers. The
// Record functions are no-ops until Init runs, so one-shot CLI imports that
// never expose a /metrics endpoint pay nothing.
func Init(opts ...Option) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMu.Lock()
	if global == nil {
		global = initInstruments(config)
	}
	globalMu.Unlock()
}

// RecordImport records one finished import attempt.
func RecordImport(mode, status string, elapsed time.Duration) {
	if global != nil {
		global.importsTotal.WithLabelValues(mode, status).Inc()
		global.importDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
}

// RecordStepError records an import failing at the named pipeline step.
func RecordStepError(step string) {
	if global != nil {
		global.stepErrors.WithLabelValues(step).Inc()
	}
}

// RecordGeneratorRun records one artifact generator invocation.
func RecordGeneratorRun(backend, status string) {
	if global != nil {
		global.generatorRuns.WithLabelValues(backend, status).Inc()
	}
}
