package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tank-monitor/internal/status"
)

// StatusJSON is the JSON representation of the daemon status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Device        string             `json:"device"`
	Session       string             `json:"session"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     string             `json:"start_time"`
	Timestamp     string             `json:"timestamp"`
	Cycles        int                `json:"cycles"`
	LastCollected string             `json:"last_collected,omitempty"`
	Values        map[string]float64 `json:"values"`
	Sensors       []SensorJSON       `json:"sensors"`
	MQTT          MQTTStatus         `json:"mqtt"`
	Config        ConfigJSON         `json:"config"`
}

// SensorJSON is the JSON representation of one bundle's health.
type SensorJSON struct {
	Name        string `json:"name"`
	Reads       int    `json:"reads"`
	Failures    int    `json:"failures"`
	LastSuccess string `json:"last_success,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Rebuilding  bool   `json:"rebuilding,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func formatJSON(snap status.Snapshot) []byte {
	sensors := make([]SensorJSON, 0, len(snap.Bundles))
	for _, bs := range snap.Bundles {
		sj := SensorJSON{
			Name:       bs.Name,
			Reads:      bs.Reads,
			Failures:   bs.Failures,
			LastError:  bs.LastError,
			Rebuilding: bs.Stale,
		}
		if !bs.LastSuccess.IsZero() {
			sj.LastSuccess = bs.LastSuccess.UTC().Format(time.RFC3339)
		}
		sensors = append(sensors, sj)
	}

	inner := StatusInner{
		Device:        snap.Config.Device,
		Session:       snap.Session,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Cycles:        snap.Cycles,
		Values:        snap.Values,
		Sensors:       sensors,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if !snap.LastCollected.IsZero() {
		inner.LastCollected = snap.LastCollected.UTC().Format(time.RFC3339)
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
