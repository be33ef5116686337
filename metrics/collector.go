// Package metrics implements a Prometheus collector instrumenting server
// activity: open connections, active sessions, evaluations in flight, and
// eval duration; byte counts on the wire are not collected. A hand-rolled prometheus.Collector
// with mutex-guarded state reported in Collect rather than
// prometheus.NewGaugeVec wrappers, since these gauges have no dynamic label
// cardinality worth the indirection.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements prometheus.Collector and the narrower EvalMetrics /
// ServerMetrics interfaces the nrepl package depends on, so the domain
// package stays decoupled from the specific metrics backend.
type Collector struct {
	namespace string

	connections  int64
	sessions     int64
	evalsRunning int64

	mu          sync.Mutex
	evalStarts  map[int64]time.Time
	evalCounter int64

	durationsMu sync.Mutex
	durations   []float64

	connDesc    *prometheus.Desc
	sessionDesc *prometheus.Desc
	evalsDesc   *prometheus.Desc
	durationDesc *prometheus.Desc
}

// NewCollector returns a Collector whose metric names are prefixed with
// namespace (e.g. "nrepl").
func NewCollector(namespace string) *Collector {
	return &Collector{
		namespace:    namespace,
		evalStarts:   make(map[int64]time.Time),
		connDesc:     prometheus.NewDesc(namespace+"_open_connections", "Number of currently open client connections.", nil, nil),
		sessionDesc:  prometheus.NewDesc(namespace+"_active_sessions", "Number of currently registered sessions.", nil, nil),
		evalsDesc:    prometheus.NewDesc(namespace+"_evals_in_flight", "Number of evaluations currently running.", nil, nil),
		durationDesc: prometheus.NewDesc(namespace+"_eval_duration_seconds", "Observed eval durations.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.connDesc
	descs <- c.sessionDesc
	descs <- c.evalsDesc
	descs <- c.durationDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	metrics <- prometheus.MustNewConstMetric(c.connDesc, prometheus.GaugeValue, float64(atomic.LoadInt64(&c.connections)))
	metrics <- prometheus.MustNewConstMetric(c.sessionDesc, prometheus.GaugeValue, float64(atomic.LoadInt64(&c.sessions)))
	metrics <- prometheus.MustNewConstMetric(c.evalsDesc, prometheus.GaugeValue, float64(atomic.LoadInt64(&c.evalsRunning)))

	c.durationsMu.Lock()
	var sum float64
	count := uint64(len(c.durations))
	for _, d := range c.durations {
		sum += d
	}
	c.durationsMu.Unlock()
	metrics <- prometheus.MustNewConstSummary(c.durationDesc, count, sum, nil)
}

// ConnectionOpened increments the open-connections gauge.
func (c *Collector) ConnectionOpened() { atomic.AddInt64(&c.connections, 1) }

// ConnectionClosed decrements the open-connections gauge.
func (c *Collector) ConnectionClosed() { atomic.AddInt64(&c.connections, -1) }

// SessionCreated increments the active-sessions gauge.
func (c *Collector) SessionCreated() { atomic.AddInt64(&c.sessions, 1) }

// SessionClosed decrements the active-sessions gauge.
func (c *Collector) SessionClosed() { atomic.AddInt64(&c.sessions, -1) }

// EvalStarted increments the evals-in-flight gauge and records a start
// timestamp for duration accounting.
func (c *Collector) EvalStarted() {
	atomic.AddInt64(&c.evalsRunning, 1)
	c.mu.Lock()
	c.evalCounter++
	id := c.evalCounter
	c.evalStarts[id] = time.Now()
	c.mu.Unlock()
}

// EvalFinished decrements the evals-in-flight gauge. Duration is not
// correlated to a specific EvalStarted call (the EvalMetrics interface
// carries no token), so this records an approximate duration against the
// oldest still-open start, consistent with the FIFO per-session admission
// the evaluator already guarantees for same-session evals.
func (c *Collector) EvalFinished() {
	atomic.AddInt64(&c.evalsRunning, -1)

	c.mu.Lock()
	var oldestID int64 = -1
	var oldest time.Time
	for id, t := range c.evalStarts {
		if oldestID == -1 || t.Before(oldest) {
			oldestID, oldest = id, t
		}
	}
	if oldestID != -1 {
		delete(c.evalStarts, oldestID)
	}
	c.mu.Unlock()

	if oldestID != -1 {
		c.durationsMu.Lock()
		c.durations = append(c.durations, time.Since(oldest).Seconds())
		c.durationsMu.Unlock()
	}
}

var _ prometheus.Collector = (*Collector)(nil)
