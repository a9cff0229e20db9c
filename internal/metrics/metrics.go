// Package metrics tracks runtime statistics of a scan.
//
// Counters live twice: as atomics for the cheap in-process Snapshot,
// and in a private Prometheus registry that can be written out as a
// node_exporter textfile after the run.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pscan"

// Collector tracks runtime metrics for one scan run.
type Collector struct {
	probesActive atomic.Int64
	probesPeak   atomic.Int64
	probesTotal  atomic.Int64
	reachable    atomic.Int64
	anomalies    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string

	registry      *prometheus.Registry
	promProbes    *prometheus.CounterVec
	promAnomalies *prometheus.CounterVec
	promActive    prometheus.Gauge
	promDuration  *prometheus.HistogramVec
}

// New creates a collector with the start time set to now and its own
// Prometheus registry.
func New() *Collector {
	c := &Collector{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		promProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "total",
				Help:      "Completed probes by protocol and status.",
			},
			[]string{"protocol", "status"},
		),
		promAnomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "anomalies_total",
				Help:      "Probe tasks that failed abnormally and were dropped from the results.",
			},
			[]string{"protocol"},
		),
		promActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "in_flight",
				Help:      "Probes currently holding a socket.",
			},
		),
		promDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "duration_seconds",
				Help:      "Wall time of a single probe.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"protocol"},
		),
	}
	c.registry.MustRegister(c.promProbes, c.promAnomalies, c.promActive, c.promDuration)
	return c
}

// ── Probe lifecycle ──────────────────────────────────────────────────

// ProbeStarted marks a probe as holding a socket.
func (c *Collector) ProbeStarted() {
	if c == nil {
		return
	}
	n := c.probesActive.Add(1)
	c.promActive.Inc()
	for {
		peak := c.probesPeak.Load()
		if n <= peak || c.probesPeak.CompareAndSwap(peak, n) {
			return
		}
	}
}

// ProbeDone releases the in-flight slot taken by ProbeStarted.
func (c *Collector) ProbeDone() {
	if c == nil {
		return
	}
	c.probesActive.Add(-1)
	c.promActive.Dec()
}

// RecordResult counts a completed probe.
func (c *Collector) RecordResult(protocol, status string, reachable bool, took time.Duration) {
	if c == nil {
		return
	}
	c.probesTotal.Add(1)
	if reachable {
		c.reachable.Add(1)
	}
	c.promProbes.WithLabelValues(protocol, status).Inc()
	c.promDuration.WithLabelValues(protocol).Observe(took.Seconds())
}

// RecordAnomaly counts a dropped probe task and stores its message.
func (c *Collector) RecordAnomaly(protocol, msg string) {
	if c == nil {
		return
	}
	c.anomalies.Add(1)
	c.promAnomalies.WithLabelValues(protocol).Inc()
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Readers ──────────────────────────────────────────────────────────

// ActiveProbes returns the number of probes currently in flight.
func (c *Collector) ActiveProbes() int64 {
	if c == nil {
		return 0
	}
	return c.probesActive.Load()
}

// PeakProbes returns the highest number of probes ever in flight at
// once.
func (c *Collector) PeakProbes() int64 {
	if c == nil {
		return 0
	}
	return c.probesPeak.Load()
}

// TotalProbes returns the number of completed probes.
func (c *Collector) TotalProbes() int64 {
	if c == nil {
		return 0
	}
	return c.probesTotal.Load()
}

// AnomalyCount returns the number of dropped probe tasks.
func (c *Collector) AnomalyCount() int64 {
	if c == nil {
		return 0
	}
	return c.anomalies.Load()
}

// Registry exposes the Prometheus registry.  Nil for a nil Collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// WriteTextfile writes every metric to path in the Prometheus text
// format, atomically, for node_exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	ProbesActive     int64  `json:"probes_active"`
	ProbesPeak       int64  `json:"probes_peak"`
	ProbesTotal      int64  `json:"probes_total"`
	Reachable        int64  `json:"reachable"`
	Anomalies        int64  `json:"anomalies"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:       time.Since(c.startTime).Truncate(time.Millisecond).String(),
		ProbesActive: c.probesActive.Load(),
		ProbesPeak:   c.probesPeak.Load(),
		ProbesTotal:  c.probesTotal.Load(),
		Reachable:    c.reachable.Load(),
		Anomalies:    c.anomalies.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
