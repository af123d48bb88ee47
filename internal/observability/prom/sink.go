// Package prom adapts the statsd.Sink interface onto a Prometheus registry.
package prom

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/target/evalorch/internal/observability/statsd"
)

// Sink records statsd-style metrics as Prometheus counters, gauges and histograms.
// A metric's label set is fixed by its first observation; later tags outside that
// set are dropped and missing labels are reported as empty strings.
type Sink struct {
	namespace string
	registry  *prometheus.Registry
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*labeled[*prometheus.CounterVec]
	gauges     map[string]*labeled[*prometheus.GaugeVec]
	histograms map[string]*labeled[*prometheus.HistogramVec]
}

type labeled[V any] struct {
	vec    V
	labels []string
}

var _ statsd.Sink = (*Sink)(nil)

// Options configures a Sink.
type Options struct {
	Namespace string
	Logger    *slog.Logger
	// RegisterRuntime adds the Go runtime and process collectors.
	RegisterRuntime bool
}

// NewSink creates a Sink backed by its own registry.
func NewSink(opts Options) *Sink {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	if opts.RegisterRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Sink{
		namespace:  sanitize(opts.Namespace),
		registry:   reg,
		logger:     logger.With("component", "prometheus_sink"),
		counters:   make(map[string]*labeled[*prometheus.CounterVec]),
		gauges:     make(map[string]*labeled[*prometheus.GaugeVec]),
		histograms: make(map[string]*labeled[*prometheus.HistogramVec]),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Count adds value to the counter name_total.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	if s == nil || value < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      sanitize(name) + "_total",
			Help:      "Count of " + name + " events.",
		}, labels)
		if !s.register(name, vec) {
			return
		}
		c = &labeled[*prometheus.CounterVec]{vec: vec, labels: labels}
		s.counters[name] = c
	}
	c.vec.WithLabelValues(labelValues(c.labels, tags)...).Add(float64(value))
}

// Gauge sets the gauge name to value.
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gauges[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      sanitize(name),
			Help:      "Current value of " + name + ".",
		}, labels)
		if !s.register(name, vec) {
			return
		}
		g = &labeled[*prometheus.GaugeVec]{vec: vec, labels: labels}
		s.gauges[name] = g
	}
	g.vec.WithLabelValues(labelValues(g.labels, tags)...).Set(value)
}

// Timing observes value in seconds on the histogram name_seconds.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histograms[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      sanitize(name) + "_seconds",
			Help:      "Duration of " + name + " in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, labels)
		if !s.register(name, vec) {
			return
		}
		h = &labeled[*prometheus.HistogramVec]{vec: vec, labels: labels}
		s.histograms[name] = h
	}
	h.vec.WithLabelValues(labelValues(h.labels, tags)...).Observe(value.Seconds())
}

func (s *Sink) register(name string, c prometheus.Collector) bool {
	if err := s.registry.Register(c); err != nil {
		s.logger.Warn("prometheus register failed", "metric", name, "error", err)
		return false
	}
	return true
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		if n := sanitize(k); n != "" {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func labelValues(labels []string, tags map[string]string) []string {
	byName := make(map[string]string, len(tags))
	for k, v := range tags {
		byName[sanitize(k)] = v
	}
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = byName[l]
	}
	return out
}

// sanitize maps a statsd-style dotted name onto the Prometheus name charset.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if b.Len() == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
