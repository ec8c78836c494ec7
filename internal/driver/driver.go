// Package driver provides sensor drivers with hardware abstraction.
// Each driver exclusively owns its hardware handle (bus, pin, or file
// descriptor). Real implementations talk to Raspberry Pi peripherals; the
// fake implementation allows testing without hardware.
package driver

import (
	"context"
	"errors"
)

// Driver reads raw values from one physical sensor.
type Driver interface {
	// Read returns raw readings as a mapping of raw field name to value.
	// The context bounds the read; a driver that cannot finish in time
	// should return ctx.Err().
	Read(ctx context.Context) (map[string]float64, error)

	// Close releases the hardware handle. Must be idempotent: stale-handle
	// recovery may already have torn the handle down.
	Close() error
}

// ErrStale marks a read failure caused by an unusable hardware handle.
// A driver returning an error wrapping ErrStale has already discarded its
// handle and will acquire a fresh one on the next read. Callers treat the
// failure as transient but log it distinctly.
var ErrStale = errors.New("stale sensor handle")
