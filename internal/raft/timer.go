package raft

import (
	"math/rand"
	"sync"
	"time"
)

// Default timing parameters.
const (
	DefaultElectionTimeoutMin = 150 * time.Millisecond
	DefaultElectionTimeoutMax = 300 * time.Millisecond
	DefaultHeartbeatInterval  = 50 * time.Millisecond
)

// Clock supplies the current time. Timers only compare readings of the same
// clock, so a monotonic source is sufficient.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock. time.Now carries a monotonic reading,
// which is what deadline comparisons use.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Timer is an advisory deadline. It does not fire on its own; callers poll
// Elapsed with the current time.
type Timer struct {
	deadline time.Time
	duration time.Duration
}

// NewTimer creates a timer that expires d after now.
func NewTimer(now time.Time, d time.Duration) *Timer {
	return &Timer{deadline: now.Add(d), duration: d}
}

// Elapsed reports whether the deadline has been reached.
func (t *Timer) Elapsed(now time.Time) bool {
	return !now.Before(t.deadline)
}

// Reset restarts the timer with its current duration.
func (t *Timer) Reset(now time.Time) {
	t.deadline = now.Add(t.duration)
}

// ResetWith restarts the timer with a new duration.
func (t *Timer) ResetWith(now time.Time, d time.Duration) {
	t.duration = d
	t.deadline = now.Add(d)
}

// Deadline returns the current deadline.
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Duration returns the interval the timer was last reset with.
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Remaining returns the time left until the deadline, or zero if elapsed.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if t.Elapsed(now) {
		return 0
	}
	return t.deadline.Sub(now)
}

// TimeoutSource produces election timeout durations.
type TimeoutSource interface {
	Next() time.Duration
}

// RandomTimeouts yields durations uniformly distributed in [min, max].
type RandomTimeouts struct {
	min time.Duration
	max time.Duration
	rng *rand.Rand
}

// NewRandomTimeouts creates a random timeout source with its own generator.
func NewRandomTimeouts(min, max time.Duration, seed int64) *RandomTimeouts {
	if max < min {
		max = min
	}
	return &RandomTimeouts{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next random timeout.
func (r *RandomTimeouts) Next() time.Duration {
	if r.max == r.min {
		return r.min
	}
	return r.min + time.Duration(r.rng.Int63n(int64(r.max-r.min)+1))
}

// FixedTimeouts cycles through a fixed sequence of durations.
type FixedTimeouts struct {
	seq []time.Duration
	pos int
}

// NewFixedTimeouts creates a deterministic timeout source. With no
// durations it always returns DefaultElectionTimeoutMin.
func NewFixedTimeouts(seq ...time.Duration) *FixedTimeouts {
	if len(seq) == 0 {
		seq = []time.Duration{DefaultElectionTimeoutMin}
	}
	return &FixedTimeouts{seq: seq}
}

// Next returns the next duration in the sequence, wrapping around.
func (f *FixedTimeouts) Next() time.Duration {
	d := f.seq[f.pos%len(f.seq)]
	f.pos++
	return d
}
