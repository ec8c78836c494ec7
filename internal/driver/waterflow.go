//go:build linux

package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// WaterFlow measures flow rate from a hall-effect sensor by counting GPIO
// falling edges and converting pulse frequency into litres per minute.
// Pulse collection starts as soon as the line is acquired and keeps running
// between reads; Read only samples the collected ticks.
type WaterFlow struct {
	pin           int
	chipName      string
	sampleWindow  time.Duration
	slidingWindow time.Duration
	glitch        time.Duration
	calibration   float64

	chip *gpiocdev.Chip
	line *gpiocdev.Line

	mu    sync.Mutex
	ticks []time.Duration
}

func newWaterFlow(params map[string]any) (Driver, error) {
	w := &WaterFlow{
		pin:           intParam(params, "pin", 0),
		chipName:      stringParam(params, "chip", "gpiochip0"),
		sampleWindow:  secondsParam(params, "sample_window", time.Second),
		slidingWindow: secondsParam(params, "sliding_window", 3*time.Second),
		glitch:        time.Duration(intParam(params, "glitch_us", 200)) * time.Microsecond,
		calibration:   floatParam(params, "calibration_constant", 4.5),
	}
	if w.calibration <= 0 {
		return nil, fmt.Errorf("calibration_constant must be positive")
	}
	if err := w.acquire(); err != nil {
		return nil, err
	}
	return w, nil
}

func secondsParam(p map[string]any, k string, def time.Duration) time.Duration {
	if v, ok := p[k].(float64); ok && v > 0 {
		return time.Duration(v * float64(time.Second))
	}
	return def
}

func (w *WaterFlow) acquire() error {
	chip, err := gpiocdev.NewChip(w.chipName)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.chipName, err)
	}
	line, err := chip.RequestLine(w.pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(w.glitch),
		gpiocdev.WithEventHandler(w.pulse))
	if err != nil {
		chip.Close()
		return fmt.Errorf("request pin %d: %w", w.pin, err)
	}
	w.chip = chip
	w.line = line
	return nil
}

func (w *WaterFlow) pulse(evt gpiocdev.LineEvent) {
	w.mu.Lock()
	w.ticks = append(w.ticks, evt.Timestamp)
	w.trimLocked(evt.Timestamp)
	w.mu.Unlock()
}

// trimLocked drops ticks older than the sliding window. Caller holds mu.
func (w *WaterFlow) trimLocked(now time.Duration) {
	cutoff := now - w.slidingWindow
	i := 0
	for i < len(w.ticks) && w.ticks[i] < cutoff {
		i++
	}
	if i > 0 {
		w.ticks = append(w.ticks[:0], w.ticks[i:]...)
	}
}

// Read waits one sample window for pulses to accumulate and returns raw keys
// "flow_instant" and "flow_smoothed" in litres per minute.
func (w *WaterFlow) Read(ctx context.Context) (map[string]float64, error) {
	if w.line == nil {
		// Handle was torn down; rebuild it before sampling.
		if err := w.acquire(); err != nil {
			return nil, fmt.Errorf("reacquire: %v: %w", err, ErrStale)
		}
	}

	select {
	case <-time.After(w.sampleWindow):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	instant, smoothed := w.rates()
	return map[string]float64{
		"flow_instant":  instant,
		"flow_smoothed": smoothed,
	}, nil
}

func (w *WaterFlow) rates() (instant, smoothed float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.ticks)
	if n < 2 {
		return 0, 0
	}
	w.trimLocked(w.ticks[n-1])
	n = len(w.ticks)
	if n < 2 {
		return 0, 0
	}

	span := w.ticks[n-1] - w.ticks[0]
	if span <= 0 {
		return 0, 0
	}
	pulsesPerSec := float64(n-1) / span.Seconds()

	instFreq := pulsesPerSec
	if gap := w.ticks[n-1] - w.ticks[n-2]; gap > 0 {
		instFreq = 1 / gap.Seconds()
	}

	return instFreq / w.calibration, pulsesPerSec / w.calibration
}

// Close cancels pulse collection and releases the line and chip. Idempotent.
func (w *WaterFlow) Close() error {
	if w.line != nil {
		w.line.Close()
		w.line = nil
	}
	if w.chip != nil {
		w.chip.Close()
		w.chip = nil
	}
	return nil
}
