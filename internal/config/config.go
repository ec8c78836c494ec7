// Package config loads the daemon configuration from a YAML file.
// It checks file-level shape and applies defaults; pipeline semantics
// (driver contracts, telemetry key uniqueness) are validated by the bundle
// builder, which sees every record and reports every problem at once.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/tank-monitor/internal/pipeline"
)

// Duration parses from YAML either as a duration string ("250ms", "5m") or
// as a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements custom unmarshaling for both scalar forms.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: bad duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full daemon configuration.
type Config struct {
	DeviceName string   `yaml:"device_name"`
	Tick       Duration `yaml:"tick"`
	Heartbeat  Duration `yaml:"heartbeat"`
	Verbose    bool     `yaml:"verbose"`

	MQTT     MQTTConfig      `yaml:"mqtt"`
	HTTP     HTTPConfig      `yaml:"http"`
	Sensors  []SensorConfig  `yaml:"sensors"`
	Displays []DisplayConfig `yaml:"displays"`
}

// MQTTConfig configures the telemetry publisher. An empty broker disables
// publishing (useful for print-once runs and bench setups).
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	BufferSize  int    `yaml:"buffer_size"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SensorConfig is one sensor record.
type SensorConfig struct {
	Name        string                     `yaml:"name"`
	Type        string                     `yaml:"type"`
	Params      map[string]any             `yaml:"params"`
	Keys        map[string]string          `yaml:"keys"`
	Calibration map[string]CalibrationSpec `yaml:"calibration"`
	Smoothing   map[string]float64         `yaml:"smoothing"`
	Ranges      map[string]RangeSpec       `yaml:"ranges"`
	Interval    Duration                   `yaml:"interval"`
	ReadTimeout Duration                   `yaml:"read_timeout"`
}

// CalibrationSpec uses pointers so an omitted field keeps its default
// (slope 1, offset 0) instead of collapsing to zero.
type CalibrationSpec struct {
	Slope  *float64 `yaml:"slope"`
	Offset *float64 `yaml:"offset"`
}

// RangeSpec bounds a telemetry key; an omitted side is unbounded.
type RangeSpec struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// DisplayConfig selects a display output.
type DisplayConfig struct {
	Type string   `yaml:"type"`
	Keys []string `yaml:"keys"`
}

// Load reads, parses, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Tick == 0 {
		c.Tick = Duration(500 * time.Millisecond)
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = Duration(15 * time.Minute)
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "tank-monitor"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "telemetry/tank"
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = 256
	}
	for i := range c.Sensors {
		if c.Sensors[i].Interval == 0 {
			c.Sensors[i].Interval = Duration(pipeline.DefaultInterval)
		}
		if c.Sensors[i].ReadTimeout == 0 {
			c.Sensors[i].ReadTimeout = Duration(pipeline.DefaultReadTimeout)
		}
	}
}

func (c *Config) validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name is required")
	}
	if c.Tick < 0 {
		return fmt.Errorf("tick must be positive")
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("at least one sensor is required")
	}
	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensors[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sensors[%d]: duplicate sensor name %q", i, s.Name)
		}
		seen[s.Name] = true
		if s.Interval < 0 || s.ReadTimeout < 0 {
			return fmt.Errorf("sensor %q: interval and read_timeout must be positive", s.Name)
		}
	}
	for i, d := range c.Displays {
		if d.Type == "" {
			return fmt.Errorf("displays[%d]: type is required", i)
		}
	}
	return nil
}

// Records converts the sensor configs into builder records.
func (c *Config) Records() []pipeline.Record {
	recs := make([]pipeline.Record, len(c.Sensors))
	for i, s := range c.Sensors {
		rec := pipeline.Record{
			Name:        s.Name,
			Type:        s.Type,
			Params:      s.Params,
			Keys:        s.Keys,
			Interval:    s.Interval.Std(),
			ReadTimeout: s.ReadTimeout.Std(),
			Smoothing:   s.Smoothing,
		}
		if len(s.Calibration) > 0 {
			rec.Calibration = make(map[string]pipeline.Calibration, len(s.Calibration))
			for key, spec := range s.Calibration {
				cal := pipeline.Calibration{Slope: 1, Offset: 0}
				if spec.Slope != nil {
					cal.Slope = *spec.Slope
				}
				if spec.Offset != nil {
					cal.Offset = *spec.Offset
				}
				rec.Calibration[key] = cal
			}
		}
		if len(s.Ranges) > 0 {
			rec.Ranges = make(map[string]pipeline.Range, len(s.Ranges))
			for key, spec := range s.Ranges {
				r := pipeline.Range{Min: math.Inf(-1), Max: math.Inf(1)}
				if spec.Min != nil {
					r.Min = *spec.Min
				}
				if spec.Max != nil {
					r.Max = *spec.Max
				}
				rec.Ranges[key] = r
			}
		}
		recs[i] = rec
	}
	return recs
}
