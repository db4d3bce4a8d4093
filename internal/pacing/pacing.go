// Package pacing enforces the fixed delays the directory API and AI provider
// require between sequential calls.
//
// A Pacer waits Delay between consecutive steps of a sequence and checks for
// cancellation before every wait, so an interrupted batch keeps the work it
// already completed. The clock is injectable so tests run without sleeping.
package pacing

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for pacing.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Pacer spaces sequential calls by at least Delay.
type Pacer struct {
	Delay time.Duration
	Clock Clock
}

// New constructs a Pacer. A nil clock selects the wall clock.
func New(delay time.Duration, clock Clock) *Pacer {
	if clock == nil {
		clock = RealClock()
	}
	return &Pacer{Delay: delay, Clock: clock}
}

// Wait blocks for Delay unless ctx is cancelled first.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.Delay <= 0 {
		return nil
	}
	clock := p.Clock
	if clock == nil {
		clock = RealClock()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(p.Delay):
		return nil
	}
}

// Each runs fn for indexes 0..n-1 in order, waiting Delay between calls.
// It stops at the first error fn returns, or when ctx is cancelled; callers
// that tolerate per-step failures record them and return nil from fn.
func (p *Pacer) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := p.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// FakeClock fires every After immediately and records the requested delays.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

// NewFakeClock returns a FakeClock starting at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the fake time by d and returns an already-fired channel.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves the fake time forward without recording a wait.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Waits returns a copy of every delay requested so far.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}
