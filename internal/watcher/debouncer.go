package watcher

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer groups rapid file changes together. Only the most recent event of
// a burst is delivered, once no further event arrived for the delay.
type Debouncer struct {
	clock clockwork.Clock
	delay time.Duration
	fire  func(ChangeEvent)

	mutex   sync.Mutex
	timer   clockwork.Timer
	pending ChangeEvent
	count   int
	gen     uint64
	stopped bool
}

// NewDebouncer creates a debouncer calling fire with the settled event. fire
// runs with the debouncer's lock held and must not block or call back into the
// debouncer. A delay of zero delivers every event immediately.
func NewDebouncer(clock clockwork.Clock, delay time.Duration, fire func(ChangeEvent)) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{
		clock: clock,
		delay: delay,
		fire:  fire,
	}
}

// Trigger records an event and restarts the quiet period.
func (d *Debouncer) Trigger(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}

	d.pending = event
	d.count++

	if d.delay <= 0 {
		d.flushLocked()
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.flush(gen)
	})
}

// Pending reports whether an event is waiting for the quiet period to end.
func (d *Debouncer) Pending() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.count > 0
}

// Stop discards any pending event. No call to fire starts after Stop returns.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.count = 0
}

func (d *Debouncer) flush(gen uint64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	// A timer that lost the race against Stop or a newer Trigger
	if d.stopped || gen != d.gen {
		return
	}
	d.timer = nil
	d.flushLocked()
}

func (d *Debouncer) flushLocked() {
	if d.count == 0 {
		return
	}
	event := d.pending
	event.Coalesced = d.count
	d.pending = ChangeEvent{}
	d.count = 0
	d.fire(event)
}
