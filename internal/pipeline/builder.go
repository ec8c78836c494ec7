package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/sweeney/tank-monitor/internal/driver"
)

// Record is one validated configuration record for a sensor, as handed over
// by the config collaborator. Calibration, Smoothing, Ranges and the timing
// fields are optional; Name, Type and Keys are not.
type Record struct {
	Name   string
	Type   string
	Params map[string]any

	Keys        map[string]string
	Calibration map[string]Calibration
	Smoothing   map[string]float64 // telemetry key -> alpha
	Ranges      map[string]Range

	Interval    time.Duration
	ReadTimeout time.Duration
}

// Default timings for records that do not specify their own.
const (
	DefaultInterval    = time.Second
	DefaultReadTimeout = 2 * time.Second
)

// Builder assembles SensorBundles from records, using a driver registry for
// type lookup and contract validation.
type Builder struct {
	registry *driver.Registry
}

// NewBuilder creates a Builder over the given registry.
func NewBuilder(registry *driver.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build constructs one bundle from one record. Construction is all or
// nothing: tables are validated before the driver is constructed, so a
// failure never leaves hardware half-acquired.
func (b *Builder) Build(rec Record) (*Bundle, error) {
	if rec.Name == "" {
		return nil, fmt.Errorf("missing sensor name")
	}
	if rec.Type == "" {
		return nil, fmt.Errorf("missing sensor type")
	}

	reg, ok := b.registry.Lookup(rec.Type)
	if !ok {
		return nil, fmt.Errorf("unknown sensor type %q (known: %v)", rec.Type, b.registry.Types())
	}

	if err := validateTables(rec); err != nil {
		return nil, err
	}

	params, err := reg.Contract.Validate(rec.Params)
	if err != nil {
		return nil, err
	}

	drv, err := reg.New(params)
	if err != nil {
		return nil, fmt.Errorf("construct %s driver: %w", rec.Type, err)
	}

	bundle := &Bundle{
		Name:        rec.Name,
		Driver:      drv,
		Keys:        copyKeys(rec.Keys),
		Calibration: make(map[string]Calibration, len(rec.Calibration)),
		Smoothing:   make(map[string]*Smoother, len(rec.Smoothing)),
		Ranges:      make(map[string]Range, len(rec.Ranges)),
		Interval:    rec.Interval,
		ReadTimeout: rec.ReadTimeout,
	}
	for key, cal := range rec.Calibration {
		bundle.Calibration[key] = cal
	}
	for key, alpha := range rec.Smoothing {
		bundle.Smoothing[key] = &Smoother{Alpha: alpha}
	}
	for key, r := range rec.Ranges {
		bundle.Ranges[key] = r
	}
	if bundle.Interval <= 0 {
		bundle.Interval = DefaultInterval
	}
	if bundle.ReadTimeout <= 0 {
		bundle.ReadTimeout = DefaultReadTimeout
	}
	return bundle, nil
}

// BuildAll constructs bundles for the full record list. Every failing record
// is reported, not just the first, so an operator fixes all misconfigurations
// in one pass. Any failure is fatal: successfully constructed drivers are
// closed again and only the combined error is returned. Output telemetry keys
// must be unique across all bundles; a collision is reported against the
// later record.
func (b *Builder) BuildAll(recs []Record) ([]*Bundle, error) {
	var errs error
	bundles := make([]*Bundle, 0, len(recs))
	owner := make(map[string]string) // telemetry key -> bundle name

	for i, rec := range recs {
		label := rec.Name
		if label == "" {
			label = fmt.Sprintf("sensor[%d]", i)
		}

		bundle, err := b.Build(rec)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", label, err))
			continue
		}

		collision := false
		for _, key := range bundle.TelemetryKeys() {
			if prev, taken := owner[key]; taken {
				errs = multierr.Append(errs, fmt.Errorf("%s: telemetry key %q already produced by %s", label, key, prev))
				collision = true
			}
		}
		if collision {
			errs = multierr.Append(errs, bundle.Close())
			continue
		}

		for _, key := range bundle.TelemetryKeys() {
			owner[key] = bundle.Name
		}
		bundles = append(bundles, bundle)
	}

	if errs != nil {
		for _, bundle := range bundles {
			errs = multierr.Append(errs, bundle.Close())
		}
		return nil, errs
	}
	return bundles, nil
}

func validateTables(rec Record) error {
	if len(rec.Keys) == 0 {
		return fmt.Errorf("missing key mapping")
	}

	canonical := make(map[string]bool, len(rec.Keys))
	var errs error
	for rawKey, key := range rec.Keys {
		if key == "" {
			errs = multierr.Append(errs, fmt.Errorf("raw field %q maps to empty telemetry key", rawKey))
			continue
		}
		if canonical[key] {
			errs = multierr.Append(errs, fmt.Errorf("telemetry key %q mapped from multiple raw fields", key))
		}
		canonical[key] = true
	}

	for key := range rec.Calibration {
		if !canonical[key] {
			errs = multierr.Append(errs, fmt.Errorf("calibration references unknown telemetry key %q", key))
		}
	}
	for key, alpha := range rec.Smoothing {
		if !canonical[key] {
			errs = multierr.Append(errs, fmt.Errorf("smoothing references unknown telemetry key %q", key))
		}
		if alpha <= 0 || alpha > 1 {
			errs = multierr.Append(errs, fmt.Errorf("smoothing alpha for %q must be in (0, 1], got %v", key, alpha))
		}
	}
	for key, r := range rec.Ranges {
		if !canonical[key] {
			errs = multierr.Append(errs, fmt.Errorf("range references unknown telemetry key %q", key))
		}
		if r.Min >= r.Max {
			errs = multierr.Append(errs, fmt.Errorf("range for %q: min (%v) must be less than max (%v)", key, r.Min, r.Max))
		}
	}
	return errs
}

func copyKeys(keys map[string]string) map[string]string {
	out := make(map[string]string, len(keys))
	for raw, key := range keys {
		out[raw] = key
	}
	return out
}
