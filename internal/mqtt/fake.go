package mqtt

import "github.com/sweeney/tank-monitor/internal/pipeline"

// FakePublisher records published snapshots and events for test assertions.
type FakePublisher struct {
	// Snapshots contains all published telemetry snapshots.
	Snapshots []pipeline.Snapshot

	// Payloads contains the JSON telemetry payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all published system events.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, is returned by PublishTelemetry.
	PublishError error

	// PublishSystemError, if set, is returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// PublishTelemetry records the snapshot.
func (f *FakePublisher) PublishTelemetry(snap pipeline.Snapshot) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	f.Snapshots = append(f.Snapshots, snap)

	payload, err := FormatTelemetryPayload(snap)
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded state.
func (f *FakePublisher) Reset() {
	f.Snapshots = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = true
}
