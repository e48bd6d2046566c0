package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// Global default instances. Components accept explicit Logger/MetricsClient
// values in their configs; these defaults back the zero-configuration path.
var (
	// DefaultLogger is the default logger instance
	DefaultLogger Logger

	// DefaultMetricsClient is the default metrics client instance
	DefaultMetricsClient MetricsClient

	// DefaultStartSpan is the default function for starting new spans
	DefaultStartSpan StartSpanFunc

	shutdownFuncs []func() error
	shutdownMutex sync.Mutex
)

type contextKey string

const (
	loggerKey  contextKey = "observability_logger"
	metricsKey contextKey = "observability_metrics"
)

// Initialize configures the observability components from one Config. It is
// safe to skip entirely; every constructor falls back to working defaults.
func Initialize(cfg Config) error {
	if DefaultLogger == nil {
		logger := &StandardLogger{prefix: "clusterkb", level: ParseLogLevel(cfg.Logging.Level)}
		DefaultLogger = logger
	}

	if DefaultMetricsClient == nil {
		if cfg.Metrics.Enabled && cfg.Metrics.Type == "prometheus" {
			DefaultMetricsClient = NewPrometheusMetricsClient(cfg.Metrics.Namespace, cfg.Metrics.Subsystem, nil)
		} else {
			DefaultMetricsClient = NewMetricsClient()
		}
	}

	if DefaultStartSpan == nil {
		if cfg.Tracing.Enabled {
			shutdownFunc, err := InitTracing(cfg.Tracing)
			if err != nil {
				DefaultLogger.Error("Failed to initialize tracing", map[string]interface{}{"error": err.Error()})
				DefaultStartSpan = NoopStartSpan
			} else {
				DefaultStartSpan = func(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
					returnCtx, returnSpan := StartSpan(ctx, name)
					if len(attrs) > 0 {
						returnSpan.SetAttribute("attributes", attrs)
					}
					return returnCtx, returnSpan
				}
				registerShutdownFunc(func() error {
					shutdownFunc()
					return nil
				})
			}
		} else {
			DefaultStartSpan = NoopStartSpan
		}
	}

	return nil
}

// Shutdown gracefully shuts down all observability components
func Shutdown() error {
	var shutdownErrors []error

	if DefaultMetricsClient != nil {
		if err := DefaultMetricsClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, err)
		}
	}

	shutdownMutex.Lock()
	funcs := make([]func() error, len(shutdownFuncs))
	copy(funcs, shutdownFuncs)
	shutdownFuncs = nil
	shutdownMutex.Unlock()

	for _, fn := range funcs {
		if err := fn(); err != nil {
			shutdownErrors = append(shutdownErrors, err)
		}
	}

	if len(shutdownErrors) > 0 {
		return shutdownErrors[0]
	}
	return nil
}

// WithContext returns a context carrying the provided observability components
func WithContext(ctx context.Context, logger Logger, metrics MetricsClient) context.Context {
	if logger != nil {
		ctx = context.WithValue(ctx, loggerKey, logger)
	}
	if metrics != nil {
		ctx = context.WithValue(ctx, metricsKey, metrics)
	}
	return ctx
}

// FromContext extracts the observability components from the provided context,
// falling back to the package defaults
func FromContext(ctx context.Context) (Logger, MetricsClient) {
	logger := DefaultLogger
	metrics := DefaultMetricsClient

	if l, ok := ctx.Value(loggerKey).(Logger); ok && l != nil {
		logger = l
	}
	if m, ok := ctx.Value(metricsKey).(MetricsClient); ok && m != nil {
		metrics = m
	}

	if logger == nil {
		logger = NewStandardLogger("clusterkb")
	}
	if metrics == nil {
		metrics = NewMetricsClient()
	}

	return logger, metrics
}

func registerShutdownFunc(fn func() error) {
	if fn == nil {
		return
	}
	shutdownMutex.Lock()
	defer shutdownMutex.Unlock()
	shutdownFuncs = append(shutdownFuncs, fn)
}
