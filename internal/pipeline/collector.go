package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/sweeney/tank-monitor/internal/driver"
	"github.com/sweeney/tank-monitor/internal/metrics"
)

// Outcome is the per-bundle result of one collection cycle.
// Either Values is set (possibly minus range-rejected keys, listed in
// Rejected) or Err explains why the bundle produced nothing this cycle.
type Outcome struct {
	Bundle   string
	Values   map[string]float64
	Rejected []string
	Err      error
	Stale    bool
}

// Collector runs collection cycles: it asks the scheduler which bundles are
// due, reads each due bundle with fault isolation, conditions the readings,
// and merges the results into one snapshot.
type Collector struct {
	device  string
	clk     clock.Clock
	sched   *Scheduler
	bundles []*Bundle
	metrics *metrics.Set

	// A driver handle has exactly one reader. An abandoned read (timeout)
	// may still be inside Driver.Read when the bundle comes due again, so
	// the bundle stays marked in-flight until that call actually returns.
	mu       sync.Mutex
	inFlight map[*Bundle]bool
	reads    sync.WaitGroup

	// Verbose enables logging of range rejections, which are filtering
	// decisions rather than errors.
	Verbose bool
}

// errReadInFlight fails a cycle for a bundle whose previous read has not
// returned yet. The scheduler's catch-up semantics retry on the next tick.
var errReadInFlight = errors.New("previous read still in flight")

// NewCollector creates a Collector over the given bundles. The clock is the
// scheduling time source; metrics may be nil.
func NewCollector(device string, bundles []*Bundle, clk clock.Clock, m *metrics.Set) *Collector {
	return &Collector{
		device:   device,
		clk:      clk,
		sched:    NewScheduler(clk.Now(), bundles),
		bundles:  bundles,
		metrics:  m,
		inFlight: make(map[*Bundle]bool),
	}
}

// Collect runs one cycle and returns the merged snapshot plus the per-bundle
// outcomes. Due bundles are read concurrently; each read is bounded by the
// bundle's timeout so one blocked driver cannot stall the rest, and the merge
// waits for every outcome before the snapshot is assembled. A cycle with no
// due bundles does no work and logs nothing.
func (c *Collector) Collect(ctx context.Context) (Snapshot, []Outcome) {
	now := c.clk.Now()
	snap := Snapshot{Time: now, Device: c.device, Values: make(map[string]float64)}

	due := c.sched.Due(now)
	if len(due) == 0 {
		return snap, nil
	}
	c.metrics.CycleDone()

	outcomes := make([]Outcome, len(due))
	var wg sync.WaitGroup
	for i, bundle := range due {
		wg.Add(1)
		go func(i int, bundle *Bundle) {
			defer wg.Done()
			outcomes[i] = c.poll(ctx, bundle)
		}(i, bundle)
	}
	wg.Wait()

	for _, out := range outcomes {
		if out.Err != nil {
			// One line per affected bundle per cycle, not one per key.
			if out.Stale {
				log.Printf("collect: %s read failed, rebuilding sensor handle: %v", out.Bundle, out.Err)
			} else {
				log.Printf("collect: %s read failed: %v", out.Bundle, out.Err)
			}
			continue
		}
		if c.Verbose && len(out.Rejected) > 0 {
			log.Printf("collect: %s dropped out-of-range keys %v", out.Bundle, out.Rejected)
		}
		// The builder guarantees telemetry key uniqueness across bundles,
		// so the merge cannot collide.
		for key, v := range out.Values {
			snap.Values[key] = v
		}
	}
	return snap, outcomes
}

// poll reads one bundle with fault isolation: any driver failure becomes
// "no readings this cycle" for this bundle's keys instead of aborting the
// cycle, and is retried on the next scheduled poll.
func (c *Collector) poll(ctx context.Context, bundle *Bundle) Outcome {
	out := Outcome{Bundle: bundle.Name}

	rctx, cancel := context.WithTimeout(ctx, bundle.ReadTimeout)
	defer cancel()

	raw, err := c.readBounded(rctx, bundle)
	if err != nil {
		out.Err = err
		out.Stale = errors.Is(err, driver.ErrStale)
		c.metrics.ReadFailed(out.Stale)
		return out
	}
	c.metrics.ReadOK()

	out.Values, out.Rejected = bundle.Condition(raw)
	c.metrics.RangeRejected(len(out.Rejected))
	return out
}

// readBounded runs the driver read in its own goroutine so a driver that
// ignores the context cannot hold up the cycle barrier past the timeout.
// An abandoned read finishes (or fails) in the background; its result is
// discarded. While it is still running the bundle refuses new reads, since
// driver handles are not safe for concurrent use.
func (c *Collector) readBounded(ctx context.Context, bundle *Bundle) (map[string]float64, error) {
	c.mu.Lock()
	if c.inFlight[bundle] {
		c.mu.Unlock()
		return nil, errReadInFlight
	}
	c.inFlight[bundle] = true
	c.mu.Unlock()

	type result struct {
		values map[string]float64
		err    error
	}
	ch := make(chan result, 1)
	c.reads.Add(1)
	go func() {
		defer c.reads.Done()
		values, err := bundle.Driver.Read(ctx)
		c.mu.Lock()
		c.inFlight[bundle] = false
		c.mu.Unlock()
		ch <- result{values, err}
	}()

	select {
	case r := <-ch:
		return r.values, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("read timed out after %v: %w", bundle.ReadTimeout, ctx.Err())
	}
}

// Close tears down every bundle's driver. It waits for abandoned reads to
// return first so no handle is closed out from under a driver. Safe to call
// after stale-handle recovery has already replaced individual handles.
func (c *Collector) Close() error {
	c.reads.Wait()
	var errs error
	for _, bundle := range c.bundles {
		if err := bundle.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", bundle.Name, err))
		}
	}
	return errs
}
