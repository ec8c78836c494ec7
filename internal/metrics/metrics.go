// Package metrics exposes prometheus counters for the acquisition pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set holds the pipeline counters. A nil *Set is valid and records nothing,
// so components can run unmetered in tests.
type Set struct {
	cycles        prometheus.Counter
	reads         prometheus.Counter
	readFailures  prometheus.Counter
	staleRebuilds prometheus.Counter
	rangeRejects  prometheus.Counter
	published     prometheus.Counter
}

// New registers the pipeline counters on the default registerer.
func New() *Set {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the pipeline counters on reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction cannot collide.
func NewWith(reg prometheus.Registerer) *Set {
	s := &Set{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tankmon_cycles_total",
			Help: "Collection cycles that had at least one due sensor.",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tankmon_sensor_reads_total",
			Help: "Successful sensor reads.",
		}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tankmon_sensor_read_failures_total",
			Help: "Sensor reads that failed and were skipped for the cycle.",
		}),
		staleRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tankmon_sensor_stale_rebuilds_total",
			Help: "Read failures that triggered a hardware handle rebuild.",
		}),
		rangeRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tankmon_range_rejected_total",
			Help: "Readings dropped by range validation.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tankmon_snapshots_published_total",
			Help: "Snapshots handed to the telemetry publisher.",
		}),
	}
	reg.MustRegister(s.cycles, s.reads, s.readFailures, s.staleRebuilds, s.rangeRejects, s.published)
	return s
}

// CycleDone counts a cycle with due sensors.
func (s *Set) CycleDone() {
	if s != nil {
		s.cycles.Inc()
	}
}

// ReadOK counts a successful sensor read.
func (s *Set) ReadOK() {
	if s != nil {
		s.reads.Inc()
	}
}

// ReadFailed counts a failed read; stale marks a handle rebuild.
func (s *Set) ReadFailed(stale bool) {
	if s == nil {
		return
	}
	s.readFailures.Inc()
	if stale {
		s.staleRebuilds.Inc()
	}
}

// RangeRejected counts n readings dropped by range validation.
func (s *Set) RangeRejected(n int) {
	if s != nil && n > 0 {
		s.rangeRejects.Add(float64(n))
	}
}

// Published counts a snapshot handed to the publisher.
func (s *Set) Published() {
	if s != nil {
		s.published.Inc()
	}
}
