// Package display renders telemetry snapshots on local outputs. Display
// failures are isolated here: a broken output is disabled and the polling
// loop never sees the error.
package display

import (
	"log"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/sweeney/tank-monitor/internal/pipeline"
)

// Display renders snapshots on one output device.
type Display interface {
	Render(snap pipeline.Snapshot) error
	Close() error
}

// Manager fans a snapshot out to all configured displays. A display whose
// Render fails is disabled so it cannot crash or slow the polling loop; the
// snapshot stays read-only throughout.
type Manager struct {
	displays []managed
}

type managed struct {
	display  Display
	disabled bool
}

// NewManager creates a Manager over the given displays.
func NewManager(displays ...Display) *Manager {
	m := &Manager{displays: make([]managed, len(displays))}
	for i, d := range displays {
		m.displays[i] = managed{display: d}
	}
	return m
}

// Render fans the snapshot out to all active displays.
func (m *Manager) Render(snap pipeline.Snapshot) {
	for i := range m.displays {
		d := &m.displays[i]
		if d.disabled {
			continue
		}
		if err := d.display.Render(snap); err != nil {
			log.Printf("display: render failed, disabling output: %v", err)
			d.disabled = true
		}
	}
}

// Active returns the number of displays still enabled.
func (m *Manager) Active() int {
	n := 0
	for _, d := range m.displays {
		if !d.disabled {
			n++
		}
	}
	return n
}

// Close closes every display, including disabled ones.
func (m *Manager) Close() error {
	var errs error
	for _, d := range m.displays {
		errs = multierr.Append(errs, d.display.Close())
	}
	return errs
}

// LogDisplay writes selected telemetry values to the process log. Used in
// development and on headless installs.
type LogDisplay struct {
	keys []string
}

// NewLogDisplay creates a LogDisplay. With no keys, every value is logged.
func NewLogDisplay(keys []string) *LogDisplay {
	return &LogDisplay{keys: keys}
}

// Render logs one line per snapshot.
func (d *LogDisplay) Render(snap pipeline.Snapshot) error {
	keys := d.keys
	if len(keys) == 0 {
		keys = make([]string, 0, len(snap.Values))
		for key := range snap.Values {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if v, ok := snap.Values[key]; ok {
			parts = append(parts, fmtValue(key, v))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	log.Printf("display: %s", strings.Join(parts, " "))
	return nil
}

// Close is a no-op for the log display.
func (d *LogDisplay) Close() error {
	return nil
}

// fmtValue renders key=value with two decimals, trailing zeros trimmed.
func fmtValue(key string, v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return key + "=" + s
}
