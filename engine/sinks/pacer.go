// Package sinks implements output drivers.
package sinks

import (
	"sync"
	"time"
)

// pacer models a device that consumes frames at a fixed rate. It turns the
// frames handed to a sink and the wall time elapsed since into a delay, and
// blocks writers once more than limit frames are queued, the way a full
// hardware buffer would.
type pacer struct {
	mu       sync.Mutex
	now      func() time.Time
	sleep    func(time.Duration)
	rate     int
	limit    int
	start    time.Time
	written  int64
	primed   bool
	paused   bool
	pausedAt time.Time
}

func newPacer(limit int) *pacer {
	return &pacer{now: time.Now, sleep: time.Sleep, limit: limit}
}

func (p *pacer) reset(rate int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	p.written = 0
	p.primed = false
	p.paused = false
}

func (p *pacer) playedLocked() int64 {
	if !p.primed || p.rate <= 0 {
		return 0
	}
	at := p.now()
	if p.paused {
		at = p.pausedAt
	}
	el := at.Sub(p.start)
	return int64(el/time.Second)*int64(p.rate) + int64(el%time.Second)*int64(p.rate)/int64(time.Second)
}

// delay returns queued frames, or -1 before the first write. An underrun
// restarts the timeline at the current instant.
func (p *pacer) delay() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.primed {
		return -1
	}
	d := p.written - p.playedLocked()
	if d < 0 {
		p.start = p.now()
		p.written = 0
		d = 0
	}
	return int(d)
}

// wrote records frames and blocks while the queue exceeds the limit.
func (p *pacer) wrote(frames int) {
	p.mu.Lock()
	if !p.primed {
		p.primed = true
		p.start = p.now()
		p.written = 0
	} else if p.written < p.playedLocked() {
		p.start = p.now()
		p.written = 0
	}
	p.written += int64(frames)
	p.mu.Unlock()

	if p.limit <= 0 {
		return
	}
	for {
		p.mu.Lock()
		over := p.written - p.playedLocked() - int64(p.limit)
		rate, paused := p.rate, p.paused
		p.mu.Unlock()
		if over <= 0 || paused || rate <= 0 {
			return
		}
		p.sleep(time.Duration(over) * time.Second / time.Duration(rate))
	}
}

func (p *pacer) pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.paused = true
	p.pausedAt = p.now()
}

func (p *pacer) resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	if p.primed {
		p.start = p.start.Add(p.now().Sub(p.pausedAt))
	}
}

// flush forgets queued frames.
func (p *pacer) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.primed {
		p.start = p.now()
		p.written = 0
		if p.paused {
			p.pausedAt = p.start
		}
	}
}
