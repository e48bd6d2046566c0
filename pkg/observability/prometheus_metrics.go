package observability

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsClient implements MetricsClient interface using Prometheus
type PrometheusMetricsClient struct {
	namespace  string
	subsystem  string
	registerer prometheus.Registerer

	// Metric collectors, keyed by sanitized metric name
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	// Mutex for thread-safe collector creation
	mu sync.RWMutex

	// Common labels attached to every metric
	commonLabels prometheus.Labels
}

// NewPrometheusMetricsClient creates a new Prometheus metrics client registered
// against the default registerer
func NewPrometheusMetricsClient(namespace, subsystem string, commonLabels map[string]string) *PrometheusMetricsClient {
	return NewPrometheusMetricsClientWithRegisterer(prometheus.DefaultRegisterer, namespace, subsystem, commonLabels)
}

// NewPrometheusMetricsClientWithRegisterer creates a client bound to a specific
// registerer. Tests pass a fresh prometheus.NewRegistry to stay isolated.
func NewPrometheusMetricsClientWithRegisterer(reg prometheus.Registerer, namespace, subsystem string, commonLabels map[string]string) *PrometheusMetricsClient {
	labels := prometheus.Labels{}
	for k, v := range commonLabels {
		labels[k] = v
	}

	client := &PrometheusMetricsClient{
		namespace:    namespace,
		subsystem:    subsystem,
		registerer:   reg,
		counters:     make(map[string]*prometheus.CounterVec),
		gauges:       make(map[string]*prometheus.GaugeVec),
		histograms:   make(map[string]*prometheus.HistogramVec),
		commonLabels: labels,
	}

	client.registerDefaultMetrics()

	return client
}

// registerDefaultMetrics registers the metrics every component emits
func (c *PrometheusMetricsClient) registerDefaultMetrics() {
	c.getOrCreateCounter("api_operations_total", "Total outbound API operations", []string{"api", "operation", "success"})
	c.getOrCreateHistogram("api_operation_duration_seconds", "Outbound API operation duration", []string{"api", "operation", "success"})
	c.getOrCreateCounter("search_operations_total", "Total search operations", []string{"collection", "mode", "success"})
	c.getOrCreateHistogram("search_duration_seconds", "Hybrid search duration", []string{"collection"})
	c.getOrCreateCounter("embedding_cache_events_total", "Embedding cache hits and misses", []string{"event"})
}

// RecordCounter increments a counter metric
func (c *PrometheusMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	vec := c.getOrCreateCounter(sanitizeMetricName(name), name, sortedLabelNames(labels))
	if m, err := vec.GetMetricWith(toPrometheusLabels(labels)); err == nil {
		m.Add(value)
	}
}

// RecordGauge records a gauge metric
func (c *PrometheusMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	vec := c.getOrCreateGauge(sanitizeMetricName(name), name, sortedLabelNames(labels))
	if m, err := vec.GetMetricWith(toPrometheusLabels(labels)); err == nil {
		m.Set(value)
	}
}

// RecordHistogram records a histogram observation
func (c *PrometheusMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	vec := c.getOrCreateHistogram(sanitizeMetricName(name), name, sortedLabelNames(labels))
	if m, err := vec.GetMetricWith(toPrometheusLabels(labels)); err == nil {
		m.Observe(value)
	}
}

// RecordTimer records a duration as a histogram in seconds
func (c *PrometheusMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	c.RecordHistogram(name+"_seconds", duration.Seconds(), labels)
}

// RecordLatency records a latency metric for an operation
func (c *PrometheusMetricsClient) RecordLatency(operation string, duration time.Duration) {
	c.RecordTimer(operation+"_latency", duration, map[string]string{"operation": operation})
}

// RecordAPIOperation records metrics for one outbound API call
func (c *PrometheusMetricsClient) RecordAPIOperation(api string, operation string, success bool, durationSeconds float64) {
	labels := map[string]string{
		"api":       api,
		"operation": operation,
		"success":   stringFromBool(success),
	}
	c.RecordCounter("api_operations_total", 1.0, labels)
	c.RecordHistogram("api_operation_duration_seconds", durationSeconds, labels)
}

// IncrementCounter increments a counter metric without labels
func (c *PrometheusMetricsClient) IncrementCounter(name string, value float64) {
	c.RecordCounter(name, value, nil)
}

// IncrementCounterWithLabels increments a counter metric with custom labels
func (c *PrometheusMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	c.RecordCounter(name, value, labels)
}

// StartTimer starts a timer and returns a function that records the duration
func (c *PrometheusMetricsClient) StartTimer(name string, labels map[string]string) func() {
	startTime := time.Now()
	return func() {
		c.RecordTimer(name, time.Since(startTime), labels)
	}
}

// Close closes the metrics client
func (c *PrometheusMetricsClient) Close() error {
	return nil
}

func (c *PrometheusMetricsClient) getOrCreateCounter(name, help string, labelNames []string) *prometheus.CounterVec {
	c.mu.RLock()
	vec, ok := c.counters[name]
	c.mu.RUnlock()
	if ok {
		return vec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if vec, ok = c.counters[name]; ok {
		return vec
	}

	vec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   c.namespace,
		Subsystem:   c.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.commonLabels,
	}, labelNames)

	if err := c.registerer.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	c.counters[name] = vec
	return vec
}

func (c *PrometheusMetricsClient) getOrCreateGauge(name, help string, labelNames []string) *prometheus.GaugeVec {
	c.mu.RLock()
	vec, ok := c.gauges[name]
	c.mu.RUnlock()
	if ok {
		return vec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if vec, ok = c.gauges[name]; ok {
		return vec
	}

	vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   c.namespace,
		Subsystem:   c.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.commonLabels,
	}, labelNames)

	if err := c.registerer.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prometheus.GaugeVec)
		}
	}
	c.gauges[name] = vec
	return vec
}

func (c *PrometheusMetricsClient) getOrCreateHistogram(name, help string, labelNames []string) *prometheus.HistogramVec {
	c.mu.RLock()
	vec, ok := c.histograms[name]
	c.mu.RUnlock()
	if ok {
		return vec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if vec, ok = c.histograms[name]; ok {
		return vec
	}

	vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   c.namespace,
		Subsystem:   c.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.commonLabels,
		Buckets:     prometheus.DefBuckets,
	}, labelNames)

	if err := c.registerer.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	c.histograms[name] = vec
	return vec
}

// sanitizeMetricName replaces characters Prometheus does not allow in names
func sanitizeMetricName(name string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return replacer.Replace(name)
}

func sortedLabelNames(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func toPrometheusLabels(labels map[string]string) prometheus.Labels {
	pl := prometheus.Labels{}
	for k, v := range labels {
		pl[k] = v
	}
	return pl
}
