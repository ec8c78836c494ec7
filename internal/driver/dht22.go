//go:build linux

package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// DHT22 bit-bangs the single-wire protocol of a DHT22 temperature/humidity
// sensor over the Linux GPIO character device.
//
// The chip handle is acquired lazily and follows an explicit lifecycle:
// Active until a line request fails, then Failed (handle discarded before the
// error is returned), then Reacquiring on the next read. A bad checksum is a
// plain transient failure and leaves the handle alone.
type DHT22 struct {
	pin      int
	chipName string

	chip *gpiocdev.Chip
}

func newDHT22(params map[string]any) (Driver, error) {
	return &DHT22{
		pin:      intParam(params, "pin", 0),
		chipName: stringParam(params, "chip", "gpiochip0"),
	}, nil
}

// Read performs one DHT22 conversation and returns raw keys "temperature"
// (Celsius) and "humidity" (percent).
func (d *DHT22) Read(ctx context.Context) (map[string]float64, error) {
	if d.chip == nil {
		chip, err := gpiocdev.NewChip(d.chipName)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", d.chipName, err)
		}
		d.chip = chip
	}

	// Start signal: hold the line low for over a millisecond, then release.
	out, err := d.chip.RequestLine(d.pin, gpiocdev.AsOutput(0))
	if err != nil {
		d.discardHandle()
		return nil, fmt.Errorf("request pin %d for output: %v: %w", d.pin, err, ErrStale)
	}
	time.Sleep(2 * time.Millisecond)
	out.Close()

	// The sensor answers with a preamble and 40 data bits. Bit value is
	// encoded in the spacing of consecutive falling edges: ~76-78us for a
	// zero, ~120us for a one.
	rec := newEdgeRecorder(43)
	in, err := d.chip.RequestLine(d.pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(rec.handle))
	if err != nil {
		d.discardHandle()
		return nil, fmt.Errorf("request pin %d for input: %v: %w", d.pin, err, ErrStale)
	}
	defer in.Close()

	select {
	case <-rec.done:
	case <-time.After(20 * time.Millisecond):
		// Whatever arrived is decoded below; a short frame fails there.
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	temp, humidity, err := decodeDHT22(rec.timestamps())
	if err != nil {
		return nil, err
	}
	return map[string]float64{"temperature": temp, "humidity": humidity}, nil
}

// Close releases the chip handle. Idempotent.
func (d *DHT22) Close() error {
	d.discardHandle()
	return nil
}

func (d *DHT22) discardHandle() {
	if d.chip != nil {
		d.chip.Close()
		d.chip = nil
	}
}

// edgeRecorder accumulates falling-edge timestamps from the event handler
// goroutine and signals once enough edges arrived for a full frame.
type edgeRecorder struct {
	mu    sync.Mutex
	want  int
	edges []time.Duration
	done  chan struct{}
	once  sync.Once
}

func newEdgeRecorder(want int) *edgeRecorder {
	return &edgeRecorder{want: want, done: make(chan struct{})}
}

func (r *edgeRecorder) handle(evt gpiocdev.LineEvent) {
	r.mu.Lock()
	r.edges = append(r.edges, evt.Timestamp)
	n := len(r.edges)
	r.mu.Unlock()
	if n >= r.want {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *edgeRecorder) timestamps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.edges))
	copy(out, r.edges)
	return out
}

// decodeDHT22 turns falling-edge timestamps into temperature and humidity.
// The last 41 edges delimit the 40 data bits; earlier edges belong to the
// preamble and the host start signal.
func decodeDHT22(edges []time.Duration) (temp, humidity float64, err error) {
	if len(edges) < 41 {
		return 0, 0, fmt.Errorf("short frame: %d edges", len(edges))
	}
	edges = edges[len(edges)-41:]

	var bytes [5]byte
	for i := 0; i < 40; i++ {
		gap := edges[i+1] - edges[i]
		bytes[i/8] <<= 1
		if gap > 100*time.Microsecond {
			bytes[i/8] |= 1
		}
	}

	sum := bytes[0] + bytes[1] + bytes[2] + bytes[3]
	if sum != bytes[4] {
		return 0, 0, fmt.Errorf("checksum mismatch")
	}

	humidity = float64(uint16(bytes[0])<<8|uint16(bytes[1])) / 10.0
	temp = float64(uint16(bytes[2]&0x7F)<<8|uint16(bytes[3])) / 10.0
	if bytes[2]&0x80 != 0 {
		temp = -temp
	}
	return temp, humidity, nil
}
