package pipeline

import "time"

// Scheduler decides which bundles are due for a poll at a given instant.
// It is purely a due/not-due function over recorded next-due timestamps; the
// caller owns the tick cadence and the clock.
//
// Next-due timestamps advance by whole multiples of the bundle interval from
// the origin, never by "now + interval", so systematic execution latency
// cannot accumulate drift: the long-run poll count stays floor(elapsed /
// interval) regardless of tick jitter. Timestamps must come from a source
// with a monotonic reading (time.Now or a clock.Clock), not recomputed
// wall-clock values.
type Scheduler struct {
	entries []scheduleEntry
}

type scheduleEntry struct {
	bundle *Bundle
	next   time.Time
}

// NewScheduler records the origin timestamp for every bundle. All bundles
// are due immediately at the origin.
func NewScheduler(origin time.Time, bundles []*Bundle) *Scheduler {
	entries := make([]scheduleEntry, len(bundles))
	for i, bundle := range bundles {
		entries[i] = scheduleEntry{bundle: bundle, next: origin}
	}
	return &Scheduler{entries: entries}
}

// Due returns the bundles whose next-due timestamp has passed now, advancing
// each returned bundle's timestamp by exactly one interval. After a stalled
// cycle a bundle can therefore be due on several consecutive ticks until it
// has caught up.
func (s *Scheduler) Due(now time.Time) []*Bundle {
	var due []*Bundle
	for i := range s.entries {
		e := &s.entries[i]
		if e.next.After(now) {
			continue
		}
		e.next = e.next.Add(e.bundle.Interval)
		due = append(due, e.bundle)
	}
	return due
}
