// Package metronom maps stream timestamps onto the master clock.
package metronom

import (
	"sync"
	"sync/atomic"
	"time"
)

// PTSPerSecond is the resolution of pts and vpts values.
const PTSPerSecond = 90000

// Clock reports master time in vpts.
type Clock interface {
	CurrentTime() int64
}

// SystemClock is a monotonic wall clock that can be paused and run at a
// different speed.
type SystemClock struct {
	mu     sync.Mutex
	now    func() time.Time
	origin time.Time
	base   int64
	speed  float64
	paused bool
}

func NewSystemClock() *SystemClock {
	c := &SystemClock{now: time.Now, speed: 1.0}
	c.origin = c.now()
	return c
}

func (c *SystemClock) CurrentTime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *SystemClock) currentLocked() int64 {
	if c.paused {
		return c.base
	}
	elapsed := c.now().Sub(c.origin).Seconds()
	return c.base + int64(elapsed*PTSPerSecond*c.speed)
}

// Pause freezes CurrentTime until Resume.
func (c *SystemClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.base = c.currentLocked()
	c.paused = true
}

func (c *SystemClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.origin = c.now()
	c.paused = false
}

func (c *SystemClock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SetSpeed changes the rate the clock advances at. 1.0 is real time.
func (c *SystemClock) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.currentLocked()
	c.origin = c.now()
	c.speed = speed
}

func (c *SystemClock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Set jumps the clock to vpts.
func (c *SystemClock) Set(vpts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = vpts
	c.origin = c.now()
}

// ManualClock only moves when told to.
type ManualClock struct {
	t atomic.Int64
}

func NewManualClock(start int64) *ManualClock {
	c := &ManualClock{}
	c.t.Store(start)
	return c
}

func (c *ManualClock) CurrentTime() int64 { return c.t.Load() }

func (c *ManualClock) Set(vpts int64) { c.t.Store(vpts) }

func (c *ManualClock) Advance(d int64) int64 { return c.t.Add(d) }
