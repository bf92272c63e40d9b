package engine

import (
	"errors"
	"time"

	"audiosync/engine/drift"
	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

const (
	pauseSlice  = 10 * time.Millisecond
	statsPeriod = 5 * time.Second
	warnPeriod  = 2 * time.Second
)

// loop is the only goroutine that writes to the sink. It runs until Exit and
// an empty out queue.
func (p *Port) loop() {
	defer close(p.done)
	// A flush requested while stopping must not wait forever.
	defer p.flush.reach()

	p.log.Debug("audio out loop started")
	for {
		if p.stopping.Load() && p.out.Len() == 0 {
			p.log.Debug("audio out loop stopped", "played_frames", p.stats.playedFrames.Load())
			return
		}
		p.out.WaitNotEmpty()

		// The buffer is detached under the read lock so that a drained queue
		// cannot let Open change the format while the buffer is in flight.
		p.formatMu.RLock()
		if buf := p.out.TryRemove(); buf != nil {
			p.process(buf)
		}
		p.formatMu.RUnlock()

		p.logStats()
	}
}

// process evaluates buf until it is played or disposed of. Correction and
// fill keep the buffer for another evaluation.
func (p *Port) process(buf *pcm.Buffer) {
	factor, estimated := 1.0, false
	for {
		if p.flush.requested() {
			p.flushQueued(buf)
			return
		}
		if buf.NumFrames == 0 {
			p.pool.Release(buf)
			return
		}
		if !p.sinkOpen.Load() || buf.Format != p.in {
			p.stats.staleBuffers.Add(1)
			p.log.Debug("audio out: stale buffer dropped", "format", buf.Format.String(), "active", p.in.String(), "stream", buf.Stream)
			p.pool.Release(buf)
			return
		}
		if !p.waitGated(buf) {
			return
		}
		if p.flush.requested() {
			continue
		}

		delay := p.delay()
		if delay < 0 {
			if err := p.prime(); err != nil {
				p.writeFailed("prime", err)
				p.drop(buf)
				return
			}
			continue
		}

		now := p.clock.CurrentTime()
		hwVPTS := now + int64(delay)*1024/p.framesPerKPTS
		gap := buf.VPTS - hwVPTS
		p.stats.lastGap.Store(gap)

		// The estimator sees each buffer once, not once per re-evaluation.
		if !estimated {
			if p.resampleSync.Load() {
				factor = p.est.Update(gap, buf.VPTS)
			} else if p.est.State() != drift.Invalid {
				p.est.Reset()
			}
			p.stats.setDrift(factor)
			estimated = true
		}

		switch {
		case gap < -p.cfg.MaxGap:
			p.log.Debug("audio out: late buffer dropped", "gap", gap, "vpts", buf.VPTS, "hw_vpts", hwVPTS)
			p.drop(buf)
			return

		case abs(gap) < p.cfg.MaxGap && abs(gap) > p.tolerance() &&
			now > p.lastSync+p.cfg.SyncInterval &&
			p.bufsSinceSync >= p.cfg.SyncBufs &&
			!p.resampleSync.Load():
			p.correct(now, gap)

		case gap > p.cfg.MaxGap:
			if err := p.fill(gap); err != nil {
				p.writeFailed("fill", err)
				p.drop(buf)
				return
			}

		default:
			p.play(buf, factor)
			return
		}
	}
}

// flushQueued disposes of held and everything queued behind it, then
// acknowledges the flush.
func (p *Port) flushQueued(held *pcm.Buffer) {
	n := 0
	if held != nil {
		p.pool.Release(held)
		n++
	}
	for b := p.out.TryRemove(); b != nil; b = p.out.TryRemove() {
		p.pool.Release(b)
		n++
	}
	p.driverMu.Lock()
	if p.sinkOpen.Load() {
		if err := p.drv.Control(driver.CmdFlush); err != nil && !errors.Is(err, driver.ErrCommandUnsupported) {
			p.log.Warn("audio out: sink flush failed", "error", err)
		}
	}
	p.driverMu.Unlock()
	p.conv.Reset()
	p.est.Reset()
	p.flush.reach()
	p.log.Debug("audio out flushed", "buffers", n)
}

// waitGated holds buf while playback is paused. It returns false when buf
// was dropped, either because it became late or because a drain or Exit is
// waiting on the queue.
func (p *Port) waitGated(buf *pcm.Buffer) bool {
	for p.gated() {
		if p.flush.requested() {
			return true
		}
		if p.stopping.Load() || p.draining.Load() > 0 {
			p.log.Debug("audio out: buffer discarded while paused", "vpts", buf.VPTS)
			p.drop(buf)
			return false
		}
		if buf.VPTS < p.clock.CurrentTime() {
			p.log.Debug("audio out: buffer expired while paused", "vpts", buf.VPTS)
			p.drop(buf)
			return false
		}
		time.Sleep(pauseSlice)
	}
	return true
}

func (p *Port) gated() bool {
	mode := PauseMode(p.pauseMode.Load())
	if mode == PauseNone {
		return false
	}
	paused := p.paused.Load()
	if c, ok := p.clock.(interface{ Paused() bool }); ok && c.Paused() {
		paused = true
	}
	if mode == PauseGated {
		if c, ok := p.clock.(interface{ Speed() float64 }); ok && c.Speed() != 1 {
			return true
		}
	}
	return paused
}

func (p *Port) delay() int {
	p.driverMu.Lock()
	defer p.driverMu.Unlock()
	return p.drv.Delay()
}

func (p *Port) tolerance() int64 {
	if t := p.gapTolerance.Load(); t > 0 {
		return t
	}
	p.driverMu.Lock()
	defer p.driverMu.Unlock()
	return p.drv.GapTolerance()
}

func (p *Port) prime() error {
	p.driverMu.Lock()
	defer p.driverMu.Unlock()
	p.stats.primes.Add(1)
	return p.gaps.Prime(p.drv)
}

func (p *Port) fill(gap int64) error {
	p.driverMu.Lock()
	n, err := p.gaps.Fill(p.drv, gap)
	p.driverMu.Unlock()
	p.stats.fills.Add(1)
	p.stats.filledFrames.Add(uint64(n))
	return err
}

// correct moves the clock of every attached stream a fraction of gap
// towards the sink.
func (p *Port) correct(now, gap int64) {
	delta := -gap / p.cfg.SyncGapRate
	n := p.streams.adjustOffsets(delta)
	p.lastSync = now
	p.bufsSinceSync = 0
	p.stats.corrections.Add(1)
	p.log.Debug("audio out: clock corrected", "gap", gap, "delta", delta, "streams", n)
}

func (p *Port) play(buf *pcm.Buffer, factor float64) {
	out := p.conv.Convert(buf, factor)
	p.driverMu.Lock()
	err := p.drv.Write(out.Bytes(), out.NumFrames)
	p.driverMu.Unlock()
	if err != nil {
		p.writeFailed("write", err)
	} else {
		p.stats.playedBuffers.Add(1)
		p.stats.playedFrames.Add(uint64(out.NumFrames))
	}
	p.bufsSinceSync++
	p.pool.Release(buf)
}

func (p *Port) drop(buf *pcm.Buffer) {
	p.stats.droppedBuffers.Add(1)
	p.pool.Release(buf)
}

// writeFailed counts a sink error and warns at most every warnPeriod.
func (p *Port) writeFailed(op string, err error) {
	p.stats.writeErrors.Add(1)
	if time.Since(p.lastWriteWarn) >= warnPeriod {
		p.log.Warn("audio out: sink "+op+" failed", "error", err, "errors", p.stats.writeErrors.Load())
		p.lastWriteWarn = time.Now()
	}
}

func (p *Port) logStats() {
	if time.Since(p.lastStatsAt) < statsPeriod {
		return
	}
	s := p.stats.snapshot()
	p.log.Info("audio out stats",
		"played_frames", s.PlayedFrames,
		"dropped", s.DroppedBuffers,
		"filled_frames", s.FilledFrames,
		"corrections", s.Corrections,
		"primes", s.Primes,
		"last_gap", s.LastGap,
		"drift", s.DriftFactor,
		"queue_len", p.out.Len(),
		"free", p.pool.Free(),
	)
	p.lastStatsAt = time.Now()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
