// Package prometrics backs the observability metric ports with Prometheus
// collectors.
package prometrics

import (
	"sync"

	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry creates or returns named instruments. Asking twice for the same
// name yields the collector registered the first time.
type Registry interface {
	Counter(name string, help string, labelKeys ...string) observability.Counter
	Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	namespace  string
	subsystem  string
	reg        prometheus.Registerer
}

// New returns a registry that registers collectors on reg, or on the
// default Prometheus registerer when reg is nil.
func New(reg prometheus.Registerer, namespace, subsystem string) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		namespace:  namespace,
		subsystem:  subsystem,
		reg:        reg,
	}
}

func (r *registry) Counter(name string, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	cv, ok := r.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
		}, labelKeys)
		r.reg.MustRegister(cv)
		r.counters[name] = cv
	}
	return &counter{v: cv, keys: labelKeys}
}

func (r *registry) Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	hv, ok := r.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help, Buckets: buckets,
		}, labelKeys)
		r.reg.MustRegister(hv)
		r.histograms[name] = hv
	}
	return &histogram{v: hv, keys: labelKeys}
}

type counter struct {
	v    *prometheus.CounterVec
	keys []string
}

func (c *counter) Add(d float64, labels ...observability.Label) {
	if m, err := c.v.GetMetricWith(labelMap(c.keys, labels)); err == nil {
		m.Add(d)
	}
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	m, err := c.v.GetMetricWith(labelMap(c.keys, labels))
	if err != nil {
		return boundCounter{}
	}
	return boundCounter{m: m}
}

type boundCounter struct{ m prometheus.Counter }

func (c boundCounter) Add(d float64) {
	if c.m != nil {
		c.m.Add(d)
	}
}

type histogram struct {
	v    *prometheus.HistogramVec
	keys []string
}

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	if m, err := h.v.GetMetricWith(labelMap(h.keys, labels)); err == nil {
		m.Observe(v)
	}
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	m, err := h.v.GetMetricWith(labelMap(h.keys, labels))
	if err != nil {
		return boundHistogram{}
	}
	return boundHistogram{m: m}
}

type boundHistogram struct{ m prometheus.Observer }

func (h boundHistogram) Observe(v float64) {
	if h.m != nil {
		h.m.Observe(v)
	}
}

// labelMap fills every declared key, defaulting to "" so a call site that
// omits a label records a series instead of dropping the observation.
// Unknown keys are ignored.
func labelMap(keys []string, ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(keys))
	for _, k := range keys {
		m[k] = ""
	}
	for _, l := range ls {
		if _, ok := m[l.Key]; ok {
			m[l.Key] = l.Value
		}
	}
	return m
}
