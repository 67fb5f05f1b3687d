// Package promadapters provides an odm.MetricsCollector backed by the Prometheus client library.
//
// Metric vectors are created on first use: durations become histograms in seconds, counters
// counter vectors and recorded values histograms with exponential buckets. The label names of
// a metric are fixed by its first observation; observations with a different label set are
// dropped.
//
// Usage example:
//
//	collector := promadapters.NewMetricsCollector(prometheus.DefaultRegisterer, "app")
//	registry, _ := odm.NewRegistry(store, odm.WithMetrics(collector))
package promadapters

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hydromelvictor/gogoose/odm"
)

var _ odm.MetricsCollector = (*MetricsCollector)(nil)

const helpPrefix = "odm metric "

// MetricsCollector implements odm.MetricsCollector on a prometheus.Registerer.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	labelNames map[string][]string
}

// NewMetricsCollector creates a collector registering its metrics on registerer under namespace.
// A nil registerer means prometheus.DefaultRegisterer.
func NewMetricsCollector(registerer prometheus.Registerer, namespace string) *MetricsCollector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &MetricsCollector{
		registerer: registerer,
		namespace:  sanitize(namespace),
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		labelNames: make(map[string][]string),
	}
}

// RecordDuration observes duration in seconds.
func (c *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	histogram := c.histogram(metric, labels, prometheus.DefBuckets)
	if histogram == nil {
		return
	}

	if observer, err := histogram.GetMetricWith(labels); err == nil {
		observer.Observe(duration.Seconds())
	}
}

// IncrementCounter increments the counter by one.
func (c *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	counter := c.counter(metric, labels)
	if counter == nil {
		return
	}

	if inc, err := counter.GetMetricWith(labels); err == nil {
		inc.Inc()
	}
}

// RecordValue observes value.
func (c *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	histogram := c.histogram(metric, labels, prometheus.ExponentialBuckets(1, 2, 12))
	if histogram == nil {
		return
	}

	if observer, err := histogram.GetMetricWith(labels); err == nil {
		observer.Observe(value)
	}
}

func (c *MetricsCollector) histogram(metric string, labels map[string]string, buckets []float64) *prometheus.HistogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if vec, ok := c.histograms[metric]; ok {
		return vec
	}

	names := labelNames(labels)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Name:      sanitize(metric),
		Help:      helpPrefix + metric,
		Buckets:   buckets,
	}, names)

	registered, err := c.register(vec)
	if err != nil {
		return nil
	}

	histogram, ok := registered.(*prometheus.HistogramVec)
	if !ok {
		return nil
	}

	c.histograms[metric] = histogram
	c.labelNames[metric] = names

	return histogram
}

func (c *MetricsCollector) counter(metric string, labels map[string]string) *prometheus.CounterVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if vec, ok := c.counters[metric]; ok {
		return vec
	}

	names := labelNames(labels)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      sanitize(metric),
		Help:      helpPrefix + metric,
	}, names)

	registered, err := c.register(vec)
	if err != nil {
		return nil
	}

	counter, ok := registered.(*prometheus.CounterVec)
	if !ok {
		return nil
	}

	c.counters[metric] = counter
	c.labelNames[metric] = names

	return counter
}

// register registers collector, reusing an equal collector registered before.
func (c *MetricsCollector) register(collector prometheus.Collector) (prometheus.Collector, error) {
	err := c.registerer.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		return alreadyRegistered.ExistingCollector, nil
	}

	return nil, err
}

// LabelNames returns the label names fixed for metric, or nil before its first observation.
func (c *MetricsCollector) LabelNames(metric string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.labelNames[metric])
}

func labelNames(labels map[string]string) []string {
	return slices.Sorted(maps.Keys(labels))
}

// sanitize replaces characters Prometheus does not allow in metric names.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, name)
}
