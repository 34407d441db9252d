// Package gpio reads trigger inputs wired to GPIO lines. The real reader uses
// the Linux GPIO character device; the fake reader lets tests script inputs.
package gpio

import (
	"errors"
	"sort"
	"time"
)

// Pin is one input line. ActiveLow inverts the raw level so that a logical
// true always means "triggered".
type Pin struct {
	Number    int
	ActiveLow bool
}

// Reader reads the logical level of every requested pin.
type Reader interface {
	Read() (map[int]bool, error)
	Close() error
}

var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Change is a debounced level change on one pin. Baseline marks the first
// stable reading after startup.
type Change struct {
	Pin      int
	Value    bool
	Baseline bool
	At       time.Time
}

type pinState struct {
	stable       bool
	baselined    bool
	pending      *bool
	pendingSince time.Time
}

// Debouncer turns raw samples into stable changes. A level must hold for the
// debounce duration before it is reported.
type Debouncer struct {
	debounce time.Duration
	pins     map[int]*pinState
}

func NewDebouncer(debounce time.Duration) *Debouncer {
	return &Debouncer{debounce: debounce, pins: map[int]*pinState{}}
}

// Process feeds one sample set taken at now and returns the changes it
// completes, ordered by pin number.
func (d *Debouncer) Process(levels map[int]bool, now time.Time) []Change {
	var changes []Change
	for _, pin := range sortedPins(levels) {
		if change, ok := d.processPin(pin, levels[pin], now); ok {
			changes = append(changes, change)
		}
	}
	return changes
}

// Stable returns the debounced level of pin and whether it is known yet.
func (d *Debouncer) Stable(pin int) (bool, bool) {
	st, ok := d.pins[pin]
	if !ok || !st.baselined {
		return false, false
	}
	return st.stable, true
}

func (d *Debouncer) processPin(pin int, level bool, now time.Time) (Change, bool) {
	st, ok := d.pins[pin]
	if !ok {
		st = &pinState{}
		d.pins[pin] = st
	}

	if st.baselined && level == st.stable {
		st.pending = nil
		return Change{}, false
	}

	if st.pending == nil || *st.pending != level {
		st.pending = &level
		st.pendingSince = now
		if d.debounce > 0 {
			return Change{}, false
		}
	}

	if now.Sub(st.pendingSince) < d.debounce {
		return Change{}, false
	}

	baseline := !st.baselined
	st.stable = level
	st.baselined = true
	st.pending = nil
	return Change{Pin: pin, Value: level, Baseline: baseline, At: now}, true
}

func sortedPins(levels map[int]bool) []int {
	pins := make([]int, 0, len(levels))
	for pin := range levels {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}
