// Package fence provides completion handles for submitted command streams.
package fence

import (
	"sync/atomic"
	"time"
)

// Infinite makes Wait block until the fence signals.
const Infinite time.Duration = -1

// Fence is a point in a command stream that can be polled or waited on.
type Fence interface {
	// Signaled reports whether the work before the fence has completed.
	Signaled() bool

	// Wait blocks until the fence signals or timeout elapses. A zero
	// timeout polls once; a negative timeout waits forever. It returns
	// whether the fence signaled.
	Wait(timeout time.Duration) (bool, error)
}

type done struct{}

func (done) Signaled() bool                   { return true }
func (done) Wait(time.Duration) (bool, error) { return true, nil }
func (done) String() string                   { return "fence(done)" }

// Done returns a fence that is already signaled. Flushing an empty batch or
// finishing software rendering returns it.
func Done() Fence { return done{} }

// Poll backoff bounds for Timeline.Wait.
const (
	minPollInterval = 20 * time.Microsecond
	maxPollInterval = time.Millisecond
)

// Timeline signals once a monotonically increasing completion counter
// reaches the fence's value, like a queue submission index.
type Timeline struct {
	value uint64
	poll  func() uint64
}

// NewTimeline returns a fence that signals when poll() >= value.
func NewTimeline(value uint64, poll func() uint64) *Timeline {
	return &Timeline{value: value, poll: poll}
}

// Value returns the counter value the fence waits for.
func (t *Timeline) Value() uint64 { return t.value }

// Signaled implements Fence.
func (t *Timeline) Signaled() bool { return t.poll() >= t.value }

// Wait implements Fence.
func (t *Timeline) Wait(timeout time.Duration) (bool, error) {
	if t.Signaled() {
		return true, nil
	}
	if timeout == 0 {
		return false, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	interval := minPollInterval
	for {
		if timeout > 0 {
			left := time.Until(deadline)
			if left <= 0 {
				return t.Signaled(), nil
			}
			interval = min(interval, left)
		}
		time.Sleep(interval)
		if t.Signaled() {
			return true, nil
		}
		interval = min(interval*2, maxPollInterval)
	}
}

// Counter is a submission timeline: Next hands out increasing values and
// Complete advances the completed mark. It is safe for concurrent use.
type Counter struct {
	submitted atomic.Uint64
	completed atomic.Uint64
}

// Next reserves the next submission value.
func (c *Counter) Next() uint64 { return c.submitted.Add(1) }

// Completed returns the highest completed value.
func (c *Counter) Completed() uint64 { return c.completed.Load() }

// Complete marks every value up to v as completed. Lower values are ignored.
func (c *Counter) Complete(v uint64) {
	for {
		cur := c.completed.Load()
		if v <= cur || c.completed.CompareAndSwap(cur, v) {
			return
		}
	}
}

// CompleteAll marks every submitted value as completed.
func (c *Counter) CompleteAll() { c.Complete(c.submitted.Load()) }

// Fence returns a fence for value v on this counter.
func (c *Counter) Fence(v uint64) *Timeline { return NewTimeline(v, c.Completed) }
