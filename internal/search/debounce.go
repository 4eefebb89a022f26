package search

import (
	"sync"
	"time"
)

// DefaultDebounce matches the interval the web client uses for typeahead.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces bursts of signals into a single callback invocation,
// fired once the signal stream has been quiet for the configured interval.
// Each Trigger resets the pending timer.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	timer    *time.Timer
	stopped  bool
}

func NewDebouncer(interval time.Duration, fn func()) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounce
	}
	return &Debouncer{interval: interval, fn: fn}
}

// Trigger schedules the callback, superseding any previously pending run.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.fn == nil {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fn)
}

// Stop cancels any pending run. The debouncer ignores Trigger afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
