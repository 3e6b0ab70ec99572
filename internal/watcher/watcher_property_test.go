//go:build property

package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDebouncerProperties validates the coalescing guarantees of the debouncer
func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: a burst faster than the delay fires exactly once with the last event
	properties.Property("burst collapses to the last event", prop.ForAll(
		func(types []int) bool {
			if len(types) == 0 {
				return true
			}

			clock := clockwork.NewFakeClock()
			var mu sync.Mutex
			var fired []ChangeEvent
			done := make(chan struct{}, len(types))

			d := NewDebouncer(clock, 100*time.Millisecond, func(ev ChangeEvent) {
				mu.Lock()
				fired = append(fired, ev)
				mu.Unlock()
				done <- struct{}{}
			})
			defer d.Stop()

			for _, typ := range types {
				d.Trigger(ChangeEvent{Type: EventType(typ)})
				clock.Advance(99 * time.Millisecond)
			}
			clock.Advance(time.Millisecond)

			select {
			case <-done:
			case <-time.After(time.Second):
				return false
			}

			mu.Lock()
			defer mu.Unlock()
			return len(fired) == 1 &&
				fired[0].Type == EventType(types[len(types)-1]) &&
				fired[0].Coalesced == len(types)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	// Property: with no delay every trigger is delivered in order
	properties.Property("zero delay preserves every event", prop.ForAll(
		func(types []int) bool {
			var fired []EventType
			d := NewDebouncer(clockwork.NewFakeClock(), 0, func(ev ChangeEvent) {
				fired = append(fired, ev.Type)
			})
			for _, typ := range types {
				d.Trigger(ChangeEvent{Type: EventType(typ)})
			}
			if len(fired) != len(types) {
				return false
			}
			for i, typ := range types {
				if fired[i] != EventType(typ) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
