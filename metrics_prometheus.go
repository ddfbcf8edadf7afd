package mqtt

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics on a prometheus registry. Vectors
// are created lazily on first use and cached by name.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a collector on the given registry. A nil
// registry gets its own.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &PrometheusMetrics{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the underlying registry, for mounting an HTTP handler.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

func labelKeys(labels MetricLabels) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	return keys
}

// Counter returns a counter metric.
func (p *PrometheusMetrics) Counter(name string, labels MetricLabels) Counter {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: name},
			labelKeys(labels),
		)
		p.registry.MustRegister(vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()
	return promCounter{vec.With(prometheus.Labels(labels))}
}

// Gauge returns a gauge metric.
func (p *PrometheusMetrics) Gauge(name string, labels MetricLabels) Gauge {
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: name},
			labelKeys(labels),
		)
		p.registry.MustRegister(vec)
		p.gauges[name] = vec
	}
	p.mu.Unlock()
	return promGauge{vec.With(prometheus.Labels(labels))}
}

// Histogram returns a histogram metric.
func (p *PrometheusMetrics) Histogram(name string, labels MetricLabels) Histogram {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name,
				Buckets: prometheus.DefBuckets,
			},
			labelKeys(labels),
		)
		p.registry.MustRegister(vec)
		p.histograms[name] = vec
	}
	p.mu.Unlock()
	return promHistogram{vec.With(prometheus.Labels(labels))}
}

type promCounter struct {
	c prometheus.Counter
}

func (p promCounter) Inc()              { p.c.Inc() }
func (p promCounter) Add(delta float64) { p.c.Add(delta) }

type promGauge struct {
	g prometheus.Gauge
}

func (p promGauge) Set(value float64) { p.g.Set(value) }
func (p promGauge) Inc()              { p.g.Inc() }
func (p promGauge) Dec()              { p.g.Dec() }

type promHistogram struct {
	h prometheus.Observer
}

func (p promHistogram) Observe(value float64)           { p.h.Observe(value) }
func (p promHistogram) ObserveDuration(d time.Duration) { p.h.Observe(d.Seconds()) }
