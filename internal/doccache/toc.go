package doccache

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// tocDebouncer coalesces repeated regeneration requests for the same
// document into a single regeneration after debounceInterval of quiet
// (spec.md §5: "TOC regeneration debounce (>=150ms, cancelable)"). A
// rate.Sometimes throttle additionally caps how often the *expensive*
// full regeneration may run per path even under a steady stream of
// invalidations, the way golang.org/x/time/rate is used elsewhere in the
// pack to shed load rather than to delay a single action.
type tocDebouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	limits  map[string]*rate.Sometimes
	wg      sync.WaitGroup
	closed  bool
	closeCh chan struct{}
}

func newTOCDebouncer(interval time.Duration) *tocDebouncer {
	return &tocDebouncer{
		interval: interval,
		timers:   make(map[string]*time.Timer),
		limits:   make(map[string]*rate.Sometimes),
		closeCh:  make(chan struct{}),
	}
}

// Schedule arranges for regen to run after the debounce interval, unless
// a pending request for the same path is already scheduled (it is reset
// instead) or the debouncer has been destroyed.
func (d *tocDebouncer) Schedule(path string, regen func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if t, ok := d.timers[path]; ok {
		if t.Stop() {
			d.wg.Done()
		}
	}

	limiter, ok := d.limits[path]
	if !ok {
		limiter = &rate.Sometimes{Interval: d.interval}
		d.limits[path] = limiter
	}

	d.wg.Add(1)
	d.timers[path] = time.AfterFunc(d.interval, func() {
		defer d.wg.Done()
		select {
		case <-d.closeCh:
			return
		default:
		}
		limiter.Do(regen)
	})
}

// Cancel stops any pending regeneration for path.
func (d *tocDebouncer) Cancel(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, path)
	}
}

// Destroy signals all pending timers to abort at their next suspension
// point and waits for drain, matching the cooperative cancellation
// contract of Cache.Destroy.
func (d *tocDebouncer) Destroy() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.closeCh)
	for _, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}
