// Package pipeline contains the sensor acquisition core: bundle construction
// from validated records, drift-free poll scheduling, the per-key signal
// conditioning chain, and the fault-isolated collection cycle. Time is always
// injected (a clock or explicit time.Time parameters); nothing here sleeps or
// owns a timer.
package pipeline

import (
	"sort"
	"time"

	"github.com/sweeney/tank-monitor/internal/driver"
)

// Calibration applies a linear correction: value*Slope + Offset.
type Calibration struct {
	Slope  float64
	Offset float64
}

// Range bounds accepted values, inclusive on both ends.
type Range struct {
	Min float64
	Max float64
}

// Smoother holds per-key exponential moving average state.
// Alpha is the weight of the newest sample; Alpha = 1 is pass-through.
type Smoother struct {
	Alpha float64

	prev   float64
	primed bool
}

// Apply folds v into the moving average and returns the smoothed value.
// The first value primes the state outright so there is no warm-up lag.
func (s *Smoother) Apply(v float64) float64 {
	if !s.primed {
		s.prev = v
		s.primed = true
		return v
	}
	s.prev = s.Alpha*v + (1-s.Alpha)*s.prev
	return s.prev
}

// Bundle owns one sensor driver plus its conditioning configuration.
// Only the smoothing state mutates after construction, and only from the
// single goroutine polling this bundle, so bundles need no locking.
type Bundle struct {
	// Name identifies the bundle in logs and status output.
	Name string

	// Driver is exclusively owned; its handle is never shared.
	Driver driver.Driver

	// Keys maps raw driver field names to telemetry keys.
	Keys map[string]string

	// Conditioning tables, keyed by telemetry key.
	Calibration map[string]Calibration
	Smoothing   map[string]*Smoother
	Ranges      map[string]Range

	// Interval is the poll cadence; ReadTimeout bounds one driver read.
	Interval    time.Duration
	ReadTimeout time.Duration
}

// TelemetryKeys returns the bundle's output keys, sorted.
func (b *Bundle) TelemetryKeys() []string {
	keys := make([]string, 0, len(b.Keys))
	for _, key := range b.Keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Close tears down the driver.
func (b *Bundle) Close() error {
	return b.Driver.Close()
}

// Snapshot is one merged, timestamped set of telemetry values produced by a
// collection cycle. Immutable once returned; owned by the caller.
type Snapshot struct {
	Time   time.Time
	Device string
	Values map[string]float64
}
