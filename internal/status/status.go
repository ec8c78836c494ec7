// Package status provides a thread-safe status tracker for the tank-monitor
// daemon. It is read by the HTTP handlers and feeds system event payloads.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/tank-monitor/internal/pipeline"
)

// Config contains daemon configuration for display.
type Config struct {
	Device      string
	TickMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// BundleStatus is the last known outcome for one sensor bundle.
type BundleStatus struct {
	Name        string
	LastAttempt time.Time
	LastSuccess time.Time
	LastError   string
	Stale       bool
	Reads       int
	Failures    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Session       string
	StartTime     time.Time
	Now           time.Time
	Cycles        int
	MQTTConnected bool

	// Values is the most recent merged telemetry and the time it was
	// produced.
	Values        map[string]float64
	LastCollected time.Time

	Bundles []BundleStatus
	Config  Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	session string
	start   time.Time
	cfg     Config

	cycles        int
	mqttConnected bool
	values        map[string]float64
	lastCollected time.Time
	bundles       map[string]*BundleStatus
}

// NewTracker creates a Tracker. The session id identifies one daemon boot
// across telemetry consumers.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		session: uuid.NewString(),
		start:   startTime,
		cfg:     cfg,
		values:  make(map[string]float64),
		bundles: make(map[string]*BundleStatus),
	}
}

// Session returns the boot session id.
func (t *Tracker) Session() string {
	return t.session
}

// RecordCycle folds one collection cycle into the tracked state.
// Called from the polling loop after every non-empty cycle.
func (t *Tracker) RecordCycle(snap pipeline.Snapshot, outcomes []pipeline.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(outcomes) == 0 {
		return
	}
	t.cycles++
	t.lastCollected = snap.Time
	for key, v := range snap.Values {
		t.values[key] = v
	}

	for _, out := range outcomes {
		bs := t.bundles[out.Bundle]
		if bs == nil {
			bs = &BundleStatus{Name: out.Bundle}
			t.bundles[out.Bundle] = bs
		}
		bs.LastAttempt = snap.Time
		if out.Err != nil {
			bs.Failures++
			bs.LastError = out.Err.Error()
			bs.Stale = out.Stale
			continue
		}
		bs.Reads++
		bs.LastSuccess = snap.Time
		bs.LastError = ""
		bs.Stale = false
	}
}

// SetMQTTConnected sets the broker connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.mqttConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a copy of the current state, stamped with now.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	values := make(map[string]float64, len(t.values))
	for key, v := range t.values {
		values[key] = v
	}

	bundles := make([]BundleStatus, 0, len(t.bundles))
	for _, bs := range t.bundles {
		bundles = append(bundles, *bs)
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].Name < bundles[j].Name })

	return Snapshot{
		Session:       t.session,
		StartTime:     t.start,
		Now:           now,
		Cycles:        t.cycles,
		MQTTConnected: t.mqttConnected,
		Values:        values,
		LastCollected: t.lastCollected,
		Bundles:       bundles,
		Config:        t.cfg,
	}
}
