package metrics

import (
	"sort"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Requests is the counter incremented once per dispatched request.
const Requests = "requests"

// Counters is a fixed set of named, monotonically increasing 64-bit counters.
// The name set is chosen at construction and never changes, so increments
// need no lock.
type Counters struct {
	names  []string
	values map[string]*atomic.Uint64
	descs  map[string]*prometheus.Desc
}

// NewCounters creates a counter set for the given names. Duplicate names are
// collapsed.
func NewCounters(names ...string) *Counters {
	c := &Counters{
		values: make(map[string]*atomic.Uint64, len(names)),
		descs:  make(map[string]*prometheus.Desc, len(names)),
	}
	for _, name := range names {
		if _, ok := c.values[name]; ok {
			continue
		}
		c.names = append(c.names, name)
		c.values[name] = new(atomic.Uint64)
		c.descs[name] = prometheus.NewDesc(
			Namespace+"_"+name+"_total",
			"Total number of "+name+" observed by the edge cache",
			nil, nil,
		)
	}
	sort.Strings(c.names)
	return c
}

// Inc adds one to the named counter. It returns false if name is not part
// of the set.
func (c *Counters) Inc(name string) bool {
	v, ok := c.values[name]
	if !ok {
		return false
	}
	v.Add(1)
	return true
}

// Get returns the current value of the named counter, or 0 for unknown names.
func (c *Counters) Get(name string) uint64 {
	if v, ok := c.values[name]; ok {
		return v.Load()
	}
	return 0
}

// Names returns the sorted counter names.
func (c *Counters) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Snapshot returns a point-in-time copy of every counter. Counters are read
// individually, so the snapshot is not atomic across names.
func (c *Counters) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(c.names))
	for _, name := range c.names {
		out[name] = c.values[name].Load()
	}
	return out
}

// Describe implements prometheus.Collector.
func (c *Counters) Describe(ch chan<- *prometheus.Desc) {
	for _, name := range c.names {
		ch <- c.descs[name]
	}
}

// Collect implements prometheus.Collector.
func (c *Counters) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.names {
		ch <- prometheus.MustNewConstMetric(
			c.descs[name],
			prometheus.CounterValue,
			float64(c.values[name].Load()),
		)
	}
}
