// Package metrics is a small registry of labelled counters, gauges and
// histograms rendered in the Prometheus text exposition format. The
// development backend serves it on /metrics.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultBuckets are latency buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family is one metric name with its labelled series.
type family struct {
	name    string
	help    string
	kind    kind
	labels  []string
	buckets []float64
	fn      func() float64 // gauge funcs only

	mu     sync.Mutex
	series map[string]*series
}

type series struct {
	values []string
	value  float64
	counts []uint64 // per bucket, not cumulative
	sum    float64
	count  uint64
}

func (f *family) get(values []string) *series {
	if len(values) != len(f.labels) {
		panic(fmt.Sprintf("metrics: %s wants %d label values, got %d", f.name, len(f.labels), len(values)))
	}
	key := strings.Join(values, "\xff")
	s, ok := f.series[key]
	if !ok {
		s = &series{values: append([]string(nil), values...)}
		if f.kind == kindHistogram {
			s.counts = make([]uint64, len(f.buckets))
		}
		f.series[key] = s
	}
	return s
}

// Counter only goes up.
type Counter struct{ f *family }

// Add increments the series for values by n.
func (c Counter) Add(n float64, values ...string) {
	c.f.mu.Lock()
	c.f.get(values).value += n
	c.f.mu.Unlock()
}

// Inc adds one.
func (c Counter) Inc(values ...string) { c.Add(1, values...) }

// Value returns the current value for values.
func (c Counter) Value(values ...string) float64 {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	return c.f.get(values).value
}

// Gauge goes up and down.
type Gauge struct{ f *family }

func (g Gauge) Set(v float64, values ...string) {
	g.f.mu.Lock()
	g.f.get(values).value = v
	g.f.mu.Unlock()
}

// Histogram counts observations into buckets.
type Histogram struct{ f *family }

// Observe records v for values.
func (h Histogram) Observe(v float64, values ...string) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	s := h.f.get(values)
	s.sum += v
	s.count++
	if i := sort.SearchFloat64s(h.f.buckets, v); i < len(h.f.buckets) {
		s.counts[i]++
	}
}

// Since observes the seconds elapsed since t.
func (h Histogram) Since(t time.Time, values ...string) {
	h.Observe(time.Since(t).Seconds(), values...)
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families []*family
	byName   map[string]*family
}

func New() *Registry {
	return &Registry{byName: map[string]*family{}}
}

func (r *Registry) register(f *family) *family {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[f.name]; ok {
		if existing.kind != f.kind {
			panic(fmt.Sprintf("metrics: %s registered as %s and %s", f.name, existing.kind, f.kind))
		}
		return existing
	}
	f.series = map[string]*series{}
	r.families = append(r.families, f)
	r.byName[f.name] = f
	return f
}

// Counter returns the counter family name, creating it on first use.
func (r *Registry) Counter(name, help string, labels ...string) Counter {
	return Counter{r.register(&family{name: name, help: help, kind: kindCounter, labels: labels})}
}

// Gauge returns the gauge family name, creating it on first use.
func (r *Registry) Gauge(name, help string, labels ...string) Gauge {
	return Gauge{r.register(&family{name: name, help: help, kind: kindGauge, labels: labels})}
}

// GaugeFunc registers an unlabelled gauge read from fn at render time.
func (r *Registry) GaugeFunc(name, help string, fn func() float64) {
	r.register(&family{name: name, help: help, kind: kindGauge, fn: fn})
}

// Histogram returns the histogram family name. nil buckets means
// DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64, labels ...string) Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return Histogram{r.register(&family{name: name, help: help, kind: kindHistogram, labels: labels, buckets: b})}
}

// WriteTo renders every family.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	families := append([]*family(nil), r.families...)
	r.mu.Unlock()

	var b strings.Builder
	for _, f := range families {
		f.render(&b)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Handler serves the exposition.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

func (f *family) render(b *strings.Builder) {
	if f.help != "" {
		fmt.Fprintf(b, "# HELP %s %s\n", f.name, f.help)
	}
	fmt.Fprintf(b, "# TYPE %s %s\n", f.name, f.kind)

	if f.fn != nil {
		fmt.Fprintf(b, "%s %g\n", f.name, f.fn())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := f.series[k]
		pairs := labelPairs(f.labels, s.values)
		if f.kind != kindHistogram {
			fmt.Fprintf(b, "%s%s %g\n", f.name, braces(pairs), s.value)
			continue
		}
		var cumulative uint64
		for i, le := range f.buckets {
			cumulative += s.counts[i]
			fmt.Fprintf(b, "%s_bucket%s %d\n", f.name, braces(append(pairs, fmt.Sprintf(`le="%g"`, le))), cumulative)
		}
		fmt.Fprintf(b, "%s_bucket%s %d\n", f.name, braces(append(pairs, `le="+Inf"`)), s.count)
		fmt.Fprintf(b, "%s_sum%s %g\n", f.name, braces(pairs), s.sum)
		fmt.Fprintf(b, "%s_count%s %d\n", f.name, braces(pairs), s.count)
	}
}

func labelPairs(names, values []string) []string {
	pairs := make([]string, len(names))
	for i, n := range names {
		pairs[i] = fmt.Sprintf("%s=%q", n, values[i])
	}
	return pairs
}

func braces(pairs []string) string {
	if len(pairs) == 0 {
		return ""
	}
	return "{" + strings.Join(pairs, ",") + "}"
}
