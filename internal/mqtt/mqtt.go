// Package mqtt publishes telemetry snapshots and system lifecycle events,
// with abstraction for testing. The publisher must tolerate snapshots that
// carry only a subset of the configured key set: a degraded cycle is normal.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tank-monitor/internal/pipeline"
)

// Publisher publishes to the telemetry sink.
type Publisher interface {
	// PublishTelemetry sends one snapshot. Returns an error if publishing
	// fails; failures must never crash the polling loop.
	PublishTelemetry(snap pipeline.Snapshot) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason    string // signal name, shutdown only
	Session   string // boot session id
	Retained  bool
}

// TelemetryPayload is the JSON wire shape for one snapshot.
type TelemetryPayload struct {
	TS     int64              `json:"ts"`
	Device string             `json:"device"`
	Values map[string]float64 `json:"values"`
}

// FormatTelemetryPayload creates the JSON payload for a snapshot.
func FormatTelemetryPayload(snap pipeline.Snapshot) ([]byte, error) {
	return json.Marshal(TelemetryPayload{
		TS:     snap.Time.UnixMilli(),
		Device: snap.Device,
		Values: snap.Values,
	})
}

// SystemPayload is the JSON wire shape for a system event.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Session   string `json:"session,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Session:   event.Session,
		},
	})
}
