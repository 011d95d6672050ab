// Package clock issues hybrid logical timestamps for ordering document
// operations. Timestamps encode wall-clock milliseconds plus a logical
// counter in a fixed-width text form so that lexical order matches causal
// order.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Timestamp is the text form of a hybrid logical timestamp:
// 13 zero-padded millisecond digits, a dash, 10 zero-padded counter digits.
type Timestamp string

// Millis returns the wall-clock component of the timestamp
func (t Timestamp) Millis() int64 {
	millis, _, _ := Parse(t)
	return millis
}

// Counter returns the logical counter component of the timestamp
func (t Timestamp) Counter() int64 {
	_, counter, _ := Parse(t)
	return counter
}

// Before reports whether t orders strictly before other. Fixed-width zero
// padding makes this a plain string comparison.
func (t Timestamp) Before(other Timestamp) bool {
	return t < other
}

// Format builds a timestamp from its millisecond and counter components
func Format(millis, counter int64) Timestamp {
	return Timestamp(fmt.Sprintf("%013d-%010d", millis, counter))
}

// Parse splits a timestamp into its millisecond and counter components
func Parse(t Timestamp) (int64, int64, error) {
	parts := strings.SplitN(string(t), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timestamp %q", t)
	}

	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed timestamp %q: %w", t, err)
	}

	counter, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed timestamp %q: %w", t, err)
	}

	return millis, counter, nil
}

// Compare orders two timestamps, returning -1, 0, or 1
func Compare(a, b Timestamp) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Clock issues monotonically increasing timestamps. When the wall clock
// stalls or moves backwards the counter advances instead, so two calls never
// return the same or a decreasing value.
type Clock struct {
	mu         sync.Mutex
	nowFn      func() time.Time
	lastMillis int64
	counter    int64
}

// New returns a clock backed by the system wall clock
func New() *Clock {
	return &Clock{nowFn: time.Now}
}

// NewWithNow returns a clock backed by the given time source. Used in tests
// to drive the wall clock deterministically.
func NewWithNow(nowFn func() time.Time) *Clock {
	return &Clock{nowFn: nowFn}
}

// Now issues the next timestamp
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.nowFn().UnixMilli()
	if wall > c.lastMillis {
		c.lastMillis = wall
		c.counter = 0
	} else {
		c.counter++
	}

	return Format(c.lastMillis, c.counter)
}

// Observe merges a timestamp seen from another writer into the clock so that
// subsequently issued timestamps order after it. Malformed input is ignored.
func (c *Clock) Observe(t Timestamp) {
	millis, counter, err := Parse(t)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if millis > c.lastMillis {
		c.lastMillis = millis
		c.counter = counter
	} else if millis == c.lastMillis && counter > c.counter {
		c.counter = counter
	}
}
