package status

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/tank-monitor/internal/pipeline"
)

func newTestTracker(start time.Time) *Tracker {
	return NewTracker(start, Config{Device: "tank", TickMs: 500, Broker: "tcp://broker:1883"})
}

func TestTrackerSession(t *testing.T) {
	a := newTestTracker(time.Now())
	b := newTestTracker(time.Now())
	if a.Session() == "" {
		t.Error("session id is empty")
	}
	if a.Session() == b.Session() {
		t.Error("two boots share a session id")
	}
}

func TestTrackerRecordCycle(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	tr := newTestTracker(start)

	at := start.Add(time.Second)
	tr.RecordCycle(
		pipeline.Snapshot{Time: at, Device: "tank", Values: map[string]float64{"water_temperature": 21.5}},
		[]pipeline.Outcome{
			{Bundle: "temp", Values: map[string]float64{"water_temperature": 21.5}},
			{Bundle: "flow", Err: errors.New("bus glitch")},
		},
	)

	snap := tr.Snapshot(at.Add(time.Second))
	if snap.Cycles != 1 {
		t.Errorf("cycles: got %d, want 1", snap.Cycles)
	}
	if snap.Values["water_temperature"] != 21.5 {
		t.Errorf("values: got %v", snap.Values)
	}
	if !snap.LastCollected.Equal(at) {
		t.Errorf("last collected: got %v, want %v", snap.LastCollected, at)
	}
	if snap.Uptime() != 2*time.Second {
		t.Errorf("uptime: got %v", snap.Uptime())
	}

	if len(snap.Bundles) != 2 {
		t.Fatalf("got %d bundle statuses, want 2", len(snap.Bundles))
	}
	// Sorted by name: flow before temp.
	flow, temp := snap.Bundles[0], snap.Bundles[1]
	if flow.Name != "flow" || temp.Name != "temp" {
		t.Fatalf("bundle order: %q, %q", flow.Name, temp.Name)
	}
	if flow.Failures != 1 || flow.LastError == "" || !flow.LastSuccess.IsZero() {
		t.Errorf("failing bundle: %+v", flow)
	}
	if temp.Reads != 1 || temp.LastError != "" || !temp.LastSuccess.Equal(at) {
		t.Errorf("healthy bundle: %+v", temp)
	}
}

func TestTrackerRecoveryClearsError(t *testing.T) {
	start := time.Now()
	tr := newTestTracker(start)

	first := start.Add(time.Second)
	tr.RecordCycle(
		pipeline.Snapshot{Time: first, Values: map[string]float64{}},
		[]pipeline.Outcome{{Bundle: "ph", Err: errors.New("gone"), Stale: true}},
	)
	if bs := tr.Snapshot(first).Bundles[0]; !bs.Stale || bs.LastError == "" {
		t.Fatalf("failed cycle not recorded: %+v", bs)
	}

	second := first.Add(time.Second)
	tr.RecordCycle(
		pipeline.Snapshot{Time: second, Values: map[string]float64{"ph": 7.1}},
		[]pipeline.Outcome{{Bundle: "ph", Values: map[string]float64{"ph": 7.1}}},
	)

	bs := tr.Snapshot(second).Bundles[0]
	if bs.Stale || bs.LastError != "" {
		t.Errorf("recovery should clear the error state: %+v", bs)
	}
	if bs.Reads != 1 || bs.Failures != 1 {
		t.Errorf("counters: %+v", bs)
	}
}

func TestTrackerEmptyCycleIgnored(t *testing.T) {
	tr := newTestTracker(time.Now())
	tr.RecordCycle(pipeline.Snapshot{Time: time.Now()}, nil)
	if snap := tr.Snapshot(time.Now()); snap.Cycles != 0 || !snap.LastCollected.IsZero() {
		t.Errorf("empty cycle changed state: %+v", snap)
	}
}

func TestTrackerValuesPersistAcrossCycles(t *testing.T) {
	tr := newTestTracker(time.Now())
	t1 := time.Now()
	tr.RecordCycle(
		pipeline.Snapshot{Time: t1, Values: map[string]float64{"a": 1, "b": 2}},
		[]pipeline.Outcome{{Bundle: "x", Values: map[string]float64{"a": 1, "b": 2}}},
	)
	t2 := t1.Add(time.Second)
	tr.RecordCycle(
		pipeline.Snapshot{Time: t2, Values: map[string]float64{"a": 5}},
		[]pipeline.Outcome{{Bundle: "x", Values: map[string]float64{"a": 5}}},
	)

	snap := tr.Snapshot(t2)
	if snap.Values["a"] != 5 {
		t.Errorf("a: got %v, want 5", snap.Values["a"])
	}
	if snap.Values["b"] != 2 {
		t.Errorf("b should keep its last reading, got %v", snap.Values["b"])
	}
}

func TestTrackerSnapshotIsACopy(t *testing.T) {
	tr := newTestTracker(time.Now())
	tr.RecordCycle(
		pipeline.Snapshot{Time: time.Now(), Values: map[string]float64{"a": 1}},
		[]pipeline.Outcome{{Bundle: "x", Values: map[string]float64{"a": 1}}},
	)

	snap := tr.Snapshot(time.Now())
	snap.Values["a"] = 99
	snap.Bundles[0].Reads = 99

	fresh := tr.Snapshot(time.Now())
	if fresh.Values["a"] != 1 || fresh.Bundles[0].Reads != 1 {
		t.Error("snapshot shares state with the tracker")
	}
}

func TestTrackerMQTTConnected(t *testing.T) {
	tr := newTestTracker(time.Now())
	if tr.Snapshot(time.Now()).MQTTConnected {
		t.Error("should start disconnected")
	}
	tr.SetMQTTConnected(true)
	if !tr.Snapshot(time.Now()).MQTTConnected {
		t.Error("SetMQTTConnected(true) not reflected")
	}
}
