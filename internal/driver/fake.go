package driver

import (
	"context"
	"errors"
	"fmt"
)

// Frame is one scripted read outcome for the Fake driver.
type Frame struct {
	// Values is returned when Err is nil and Block is false.
	Values map[string]float64

	// Err, if set, is returned instead of values.
	Err error

	// Block makes Read hang until the context is cancelled. Used to test
	// read timeouts.
	Block bool
}

// Fake is a test double that returns scripted frames.
// Each call to Read consumes the next frame; when frames are exhausted the
// last one is returned repeatedly.
type Fake struct {
	Frames []Frame

	// Reads counts calls to Read.
	Reads int

	// Closed tracks whether Close was called; CloseCount counts calls to
	// verify idempotency.
	Closed     bool
	CloseCount int

	index int
}

// NewFake creates a Fake with the given frames.
func NewFake(frames ...Frame) *Fake {
	return &Fake{Frames: frames}
}

// Read returns the next scripted frame.
func (f *Fake) Read(ctx context.Context) (map[string]float64, error) {
	f.Reads++

	if len(f.Frames) == 0 {
		return nil, errors.New("no frames configured")
	}

	frame := f.Frames[f.index]
	if f.index < len(f.Frames)-1 {
		f.index++
	}

	if frame.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if frame.Err != nil {
		return nil, frame.Err
	}

	out := make(map[string]float64, len(frame.Values))
	for k, v := range frame.Values {
		out[k] = v
	}
	return out, nil
}

// Close marks the fake as closed.
func (f *Fake) Close() error {
	f.Closed = true
	f.CloseCount++
	return nil
}

// Reset rewinds the script.
func (f *Fake) Reset() {
	f.index = 0
	f.Reads = 0
	f.Closed = false
	f.CloseCount = 0
}

var staticContract = Contract{
	Accepted: []string{"values"},
}

// newStatic builds a driver that always returns the configured values.
// Registered as type "static" for bench configs and smoke tests on machines
// without sensor hardware.
func newStatic(params map[string]any) (Driver, error) {
	values := make(map[string]float64)
	raw, ok := params["values"].(map[string]any)
	if !ok && params["values"] != nil {
		return nil, fmt.Errorf("\"values\" must be a mapping of field name to number")
	}
	for k, v := range raw {
		f, err := AsFloat(v)
		if err != nil {
			return nil, fmt.Errorf("values[%q]: %w", k, err)
		}
		values[k] = f.(float64)
	}
	return NewFake(Frame{Values: values}), nil
}
