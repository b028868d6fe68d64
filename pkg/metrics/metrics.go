// Package metrics is a small registry that renders counters, gauges and
// histograms in the Prometheus text exposition format. Vectors carry a
// single label, which covers every CarFinder metric (source, status, stage).
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets suit request and source latencies, in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Counter only goes up.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(n int64)  { c.n.Add(n) }
func (c *Counter) Value() int64 { return c.n.Load() }

// Gauge holds a float that can be set at will.
type Gauge struct{ bits atomic.Uint64 }

func (g *Gauge) Set(v float64)  { g.bits.Store(math.Float64bits(v)) }
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// Histogram counts observations into fixed upper bounds.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64
	sum    float64
	total  uint64
}

func newHistogram(bounds []float64) *Histogram {
	b := slices.Clone(bounds)
	slices.Sort(b)
	return &Histogram{bounds: b, counts: make([]uint64, len(b))}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.total++
	if i, _ := slices.BinarySearch(h.bounds, v); i < len(h.bounds) {
		h.counts[i]++
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family is one metric name with its label values.
type family struct {
	name, help, label string
	kind              kind
	bounds            []float64

	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	fn         func() float64
}

func (f *family) counter(value string) *Counter {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[value]
	if !ok {
		c = &Counter{}
		f.counters[value] = c
	}
	return c
}

func (f *family) gauge(value string) *Gauge {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gauges[value]
	if !ok {
		g = &Gauge{}
		f.gauges[value] = g
	}
	return g
}

func (f *family) histogram(value string) *Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.histograms[value]
	if !ok {
		h = newHistogram(f.bounds)
		f.histograms[value] = h
	}
	return h
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	order    []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// family returns the named family, creating it on first use. Registering a
// name twice with a different kind panics.
func (r *Registry) family(name, help, label string, k kind, bounds []float64) *family {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.families[name]; ok {
		if f.kind != k || f.label != label {
			panic(fmt.Sprintf("metrics: %s registered as %s{%s}", name, f.kind, f.label))
		}
		return f
	}
	if bounds == nil {
		bounds = DefaultBuckets
	}
	f := &family{
		name: name, help: help, label: label, kind: k, bounds: bounds,
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
	r.families[name] = f
	r.order = append(r.order, name)
	return f
}

// Counter returns an unlabeled counter.
func (r *Registry) Counter(name, help string) *Counter {
	return r.family(name, help, "", kindCounter, nil).counter("")
}

// Gauge returns an unlabeled gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	return r.family(name, help, "", kindGauge, nil).gauge("")
}

// GaugeFunc registers a gauge whose value is read from f at render time.
func (r *Registry) GaugeFunc(name, help string, f func() float64) {
	fam := r.family(name, help, "", kindGauge, nil)
	fam.mu.Lock()
	fam.fn = f
	fam.mu.Unlock()
}

// Histogram returns an unlabeled histogram. Nil bounds use DefaultBuckets.
func (r *Registry) Histogram(name, help string, bounds []float64) *Histogram {
	return r.family(name, help, "", kindHistogram, bounds).histogram("")
}

// CounterVec is a counter family keyed by one label.
type CounterVec struct{ f *family }

// CounterVec returns a counter family labeled by label.
func (r *Registry) CounterVec(name, help, label string) *CounterVec {
	return &CounterVec{f: r.family(name, help, label, kindCounter, nil)}
}

// With returns the counter for a label value.
func (v *CounterVec) With(value string) *Counter { return v.f.counter(value) }

// GaugeVec is a gauge family keyed by one label.
type GaugeVec struct{ f *family }

// GaugeVec returns a gauge family labeled by label.
func (r *Registry) GaugeVec(name, help, label string) *GaugeVec {
	return &GaugeVec{f: r.family(name, help, label, kindGauge, nil)}
}

// With returns the gauge for a label value.
func (v *GaugeVec) With(value string) *Gauge { return v.f.gauge(value) }

// HistogramVec is a histogram family keyed by one label.
type HistogramVec struct{ f *family }

// HistogramVec returns a histogram family labeled by label.
func (r *Registry) HistogramVec(name, help, label string, bounds []float64) *HistogramVec {
	return &HistogramVec{f: r.family(name, help, label, kindHistogram, bounds)}
}

// With returns the histogram for a label value.
func (v *HistogramVec) With(value string) *Histogram { return v.f.histogram(value) }

// Render returns every family in the text exposition format.
func (r *Registry) Render() string {
	var b strings.Builder
	r.WriteTo(&b)
	return b.String()
}

// WriteTo writes every family in the text exposition format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	fams := make([]*family, len(r.order))
	for i, name := range r.order {
		fams[i] = r.families[name]
	}
	r.mu.Unlock()

	var b strings.Builder
	for _, f := range fams {
		f.render(&b)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func (f *family) render(b *strings.Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.help != "" {
		fmt.Fprintf(b, "# HELP %s %s\n", f.name, f.help)
	}
	fmt.Fprintf(b, "# TYPE %s %s\n", f.name, f.kind)

	switch f.kind {
	case kindCounter:
		for _, v := range sortedKeys(f.counters) {
			fmt.Fprintf(b, "%s%s %d\n", f.name, f.labels(v, ""), f.counters[v].Value())
		}
	case kindGauge:
		if f.fn != nil {
			fmt.Fprintf(b, "%s %g\n", f.name, f.fn())
			return
		}
		for _, v := range sortedKeys(f.gauges) {
			fmt.Fprintf(b, "%s%s %g\n", f.name, f.labels(v, ""), f.gauges[v].Value())
		}
	case kindHistogram:
		for _, v := range sortedKeys(f.histograms) {
			h := f.histograms[v]
			h.mu.Lock()
			var cum uint64
			for i, bound := range h.bounds {
				cum += h.counts[i]
				fmt.Fprintf(b, "%s_bucket%s %d\n", f.name, f.labels(v, fmt.Sprintf("%g", bound)), cum)
			}
			fmt.Fprintf(b, "%s_bucket%s %d\n", f.name, f.labels(v, "+Inf"), h.total)
			fmt.Fprintf(b, "%s_sum%s %g\n", f.name, f.labels(v, ""), h.sum)
			fmt.Fprintf(b, "%s_count%s %d\n", f.name, f.labels(v, ""), h.total)
			h.mu.Unlock()
		}
	}
}

// labels formats {label="value",le="bound"}, omitting empty parts.
func (f *family) labels(value, le string) string {
	var parts []string
	if f.label != "" {
		parts = append(parts, fmt.Sprintf("%s=%q", f.label, value))
	}
	if le != "" {
		parts = append(parts, fmt.Sprintf("le=%q", le))
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Handler serves the registry at /metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}
