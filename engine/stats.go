package engine

import (
	"math"
	"sync/atomic"
)

// Stats is a snapshot of the output loop counters.
type Stats struct {
	PlayedBuffers  uint64
	PlayedFrames   uint64
	DroppedBuffers uint64
	// StaleBuffers were queued under a format that an Open replaced.
	StaleBuffers uint64
	Fills        uint64
	FilledFrames uint64
	Corrections  uint64
	Primes       uint64
	WriteErrors  uint64
	LastGap      int64
	DriftFactor  float64
}

type counters struct {
	playedBuffers  atomic.Uint64
	playedFrames   atomic.Uint64
	droppedBuffers atomic.Uint64
	staleBuffers   atomic.Uint64
	fills          atomic.Uint64
	filledFrames   atomic.Uint64
	corrections    atomic.Uint64
	primes         atomic.Uint64
	writeErrors    atomic.Uint64
	lastGap        atomic.Int64
	driftFactor    atomic.Uint64
}

func (c *counters) setDrift(f float64) { c.driftFactor.Store(math.Float64bits(f)) }

func (c *counters) snapshot() Stats {
	return Stats{
		PlayedBuffers:  c.playedBuffers.Load(),
		PlayedFrames:   c.playedFrames.Load(),
		DroppedBuffers: c.droppedBuffers.Load(),
		StaleBuffers:   c.staleBuffers.Load(),
		Fills:          c.fills.Load(),
		FilledFrames:   c.filledFrames.Load(),
		Corrections:    c.corrections.Load(),
		Primes:         c.primes.Load(),
		WriteErrors:    c.writeErrors.Load(),
		LastGap:        c.lastGap.Load(),
		DriftFactor:    math.Float64frombits(c.driftFactor.Load()),
	}
}
