// Package engine is the audio output port: producers attach streams, queue
// timestamped buffers, and a single output loop keeps the sink in step with
// the master clock.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/livekit/protocol/logger"

	"audiosync/engine/drift"
	"audiosync/engine/driver"
	"audiosync/engine/metronom"
	"audiosync/engine/pcm"
	"audiosync/engine/pipeline"
)

// Port connects producer streams to one sink driver.
type Port struct {
	drv   driver.Driver
	clock metronom.Clock
	log   *slog.Logger
	cfg   Config

	pool *pcm.Pool
	out  *pcm.FIFO

	// openMu serializes Open, Close and Exit.
	openMu sync.Mutex
	// formatMu is write-locked while the format changes and read-locked by
	// the loop for as long as it owns a buffer.
	formatMu      sync.RWMutex
	in            pcm.Format
	output        pcm.Format
	framesPerKPTS int64
	sinkOpen      atomic.Bool

	driverMu sync.Mutex

	conv *pipeline.Converter
	gaps *pipeline.GapFiller
	est  *drift.Estimator

	streams registry

	flush    *flushBarrier
	flushMu  sync.Mutex
	discard  atomic.Int32
	draining atomic.Int32
	paused   atomic.Bool
	stopping atomic.Bool
	exitOnce sync.Once
	done     chan struct{}

	resampleSync atomic.Bool
	gapTolerance atomic.Int64
	pauseMode    atomic.Int32

	gainMu     sync.Mutex
	amp        int
	ampMute    bool
	softVolume int
	softMute   bool

	stats counters

	// Owned by the loop goroutine.
	lastSync      int64
	bufsSinceSync int
	lastStatsAt   time.Time
	lastWriteWarn time.Time
}

// NewPort starts the output loop for drv. Zero sync settings in cfg fall back
// to their defaults; start from DefaultConfig for the rest.
func NewPort(drv driver.Driver, clock metronom.Clock, cfg Config, log *slog.Logger) *Port {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("driver", drv.Name())
	cfg = cfg.withDefaults()
	pool := pcm.NewPool(cfg.NumBuffers, cfg.BufferSize)
	s0, s1 := pool.Scratch()
	p := &Port{
		drv:         drv,
		clock:       clock,
		log:         log,
		cfg:         cfg,
		pool:        pool,
		out:         pcm.NewFIFO("out"),
		conv:        pipeline.NewConverter(s0, s1),
		gaps:        pipeline.NewGapFiller(logger.LogRLogger(logr.FromSlogHandler(log.Handler()))),
		est:         drift.New(cfg.Drift),
		flush:       newFlushBarrier(),
		done:        make(chan struct{}),
		amp:         cfg.Amp,
		softVolume:  maxVolume,
		lastStatsAt: time.Now(),
	}
	p.resampleSync.Store(cfg.ResampleSync)
	p.gapTolerance.Store(cfg.GapTolerance)
	p.pauseMode.Store(int32(cfg.PauseMode))
	p.conv.SetCompressor(cfg.Compressor)
	for b, g := range cfg.Equalizer {
		p.conv.SetEqualizer(b, g)
	}
	p.applyGain()

	go p.loop()
	return p
}

func (c Config) withDefaults() Config {
	if c.MaxGap <= 0 {
		c.MaxGap = DefaultMaxGap
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.SyncBufs <= 0 {
		c.SyncBufs = DefaultSyncBufs
	}
	if c.SyncGapRate <= 0 {
		c.SyncGapRate = DefaultSyncGapRate
	}
	if c.Drift.MaxGap <= 0 {
		c.Drift.MaxGap = c.MaxGap
	}
	return c
}

// Open attaches s with format f and returns the rate the sink runs at. A
// format other than the active one drains the out queue, then reopens the
// sink; buffers still queued by other streams in the old format are dropped.
func (p *Port) Open(s *Stream, f pcm.Format) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, fmt.Errorf("audio out: open %s: %w", s, err)
	}
	p.openMu.Lock()
	defer p.openMu.Unlock()
	if p.stopping.Load() {
		return 0, ErrPortClosed
	}

	p.formatMu.RLock()
	same := p.sinkOpen.Load() && p.in == f
	p.formatMu.RUnlock()
	if !same {
		p.drain()
		p.formatMu.Lock()
		err := p.reconfigureLocked(f)
		p.formatMu.Unlock()
		if err != nil {
			return 0, err
		}
	}

	p.streams.add(s)
	s.attach(p, f)
	step := metronom.AudioStep(f.Rate)
	p.streams.each(func(o *Stream) {
		if o.Metronom != nil {
			o.Metronom.SetAudioRate(step)
		}
	})

	p.formatMu.RLock()
	defer p.formatMu.RUnlock()
	return p.output.Rate, nil
}

// Close detaches s. The last detach plays out the queue and closes the sink.
func (p *Port) Close(s *Stream) {
	p.openMu.Lock()
	defer p.openMu.Unlock()
	if !p.streams.remove(s) {
		return
	}
	s.detach()
	if p.streams.len() > 0 || p.stopping.Load() {
		return
	}
	p.drain()
	p.formatMu.Lock()
	defer p.formatMu.Unlock()
	p.driverMu.Lock()
	defer p.driverMu.Unlock()
	if p.sinkOpen.Swap(false) {
		p.drv.Close()
		p.log.Info("audio out idle, sink closed")
	}
}

// GetBuffer blocks until a buffer is free and returns it tagged with the
// stream's format.
func (p *Port) GetBuffer(s *Stream) *pcm.Buffer {
	return p.tag(p.pool.Acquire(), s)
}

// TryGetBuffer is GetBuffer without blocking; it returns nil when the pool
// is exhausted.
func (p *Port) TryGetBuffer(s *Stream) *pcm.Buffer {
	b := p.pool.TryAcquire()
	if b == nil {
		return nil
	}
	return p.tag(b, s)
}

func (p *Port) tag(b *pcm.Buffer, s *Stream) *pcm.Buffer {
	b.Stream = s
	if s != nil {
		b.Format = s.Format()
	}
	return b
}

// PutBuffer queues buf for playback. pts is the stream timestamp of the
// first frame; 0 continues from the previous buffer. It panics if the frame
// count exceeds the buffer's capacity.
func (p *Port) PutBuffer(s *Stream, buf *pcm.Buffer, pts int64) {
	if buf.Format == (pcm.Format{}) && s != nil {
		buf.Format = s.Format()
	}
	buf.CheckCapacity()
	if buf.NumFrames == 0 || p.discard.Load() > 0 || p.stopping.Load() {
		p.pool.Release(buf)
		return
	}
	buf.Stream = s
	if s != nil && s.Metronom != nil {
		buf.VPTS = s.Metronom.GotAudioSamples(pts, buf.NumFrames)
	} else {
		buf.VPTS = pts
	}
	p.out.Append(buf)
}

// Flush drops every queued buffer and the sink's own backlog. Buffers put
// while it runs are dropped too. Calls are serialized.
func (p *Port) Flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	if p.stopping.Load() {
		return
	}
	p.discard.Add(1)
	p.flush.request()
	p.out.Append(p.sentinel())
	p.flush.wait()
	p.discard.Add(-1)
	p.drain()
}

// drain waits until the loop has emptied the out queue. While playback is
// held by a pause the queue cannot play out, so queued buffers and buffers put
// meanwhile are discarded instead.
func (p *Port) drain() {
	p.draining.Add(1)
	defer p.draining.Add(-1)
	if p.gated() {
		p.discard.Add(1)
		defer p.discard.Add(-1)
	}
	p.out.WaitEmpty()
}

// sentinel returns an empty buffer that wakes the loop without being played.
func (p *Port) sentinel() *pcm.Buffer {
	b := p.pool.Acquire()
	b.NumFrames = 0
	return b
}

func (p *Port) Capabilities() driver.Capability {
	p.driverMu.Lock()
	defer p.driverMu.Unlock()
	return p.drv.Capabilities()
}

// Control pauses, resumes or flushes the sink. Pause state is remembered
// while the sink is closed.
func (p *Port) Control(cmd driver.Command) error {
	switch cmd {
	case driver.CmdPause:
		p.paused.Store(true)
	case driver.CmdResume:
		p.paused.Store(false)
	}
	p.driverMu.Lock()
	defer p.driverMu.Unlock()
	if !p.sinkOpen.Load() {
		return nil
	}
	if err := p.drv.Control(cmd); err != nil {
		return fmt.Errorf("audio out: %v: %w", cmd, err)
	}
	return nil
}

// Status describes the port as seen by a stream.
type Status struct {
	Attached bool
	SinkOpen bool
	Input    pcm.Format
	Output   pcm.Format
	Streams  int
	Queued   int
	Free     int
}

func (p *Port) Status(s *Stream) Status {
	p.formatMu.RLock()
	defer p.formatMu.RUnlock()
	return Status{
		Attached: s != nil && s.attached(p),
		SinkOpen: p.sinkOpen.Load(),
		Input:    p.in,
		Output:   p.output,
		Streams:  p.streams.len(),
		Queued:   p.out.Len(),
		Free:     p.pool.Free(),
	}
}

func (p *Port) Stats() Stats {
	return p.stats.snapshot()
}

// Exit plays out what is queued, stops the loop and releases the sink.
func (p *Port) Exit() {
	p.exitOnce.Do(func() {
		p.openMu.Lock()
		defer p.openMu.Unlock()
		// A Flush holding flushMu either completes first or sees stopping.
		p.flushMu.Lock()
		p.stopping.Store(true)
		p.flushMu.Unlock()
		p.out.Append(p.sentinel())
		<-p.done
		for b := p.out.TryRemove(); b != nil; b = p.out.TryRemove() {
			p.pool.Release(b)
		}

		p.formatMu.Lock()
		defer p.formatMu.Unlock()
		p.driverMu.Lock()
		defer p.driverMu.Unlock()
		if p.sinkOpen.Swap(false) {
			p.drv.Close()
		}
		p.drv.Exit()
		p.streams.each(func(s *Stream) { s.detach() })
		p.log.Info("audio out exited", "stats", fmt.Sprintf("%+v", p.stats.snapshot()))
	})
}

func (p *Port) reconfigureLocked(f pcm.Format) error {
	prev, hadPrev := p.in, p.sinkOpen.Load()
	p.driverMu.Lock()
	defer p.driverMu.Unlock()
	if p.sinkOpen.Swap(false) {
		p.drv.Close()
	}

	out, err := p.negotiate(f)
	if err == nil {
		p.commit(f, out)
		return nil
	}
	p.log.Warn("audio out: sink refused format", "format", f.String(), "error", err)
	if hadPrev {
		if pout, perr := p.negotiate(prev); perr == nil {
			p.commit(prev, pout)
		} else {
			p.log.Warn("audio out: previous format unavailable, sink stays closed", "format", prev.String(), "error", perr)
		}
	}
	return &NegotiationError{Format: f, Err: err}
}

func (p *Port) commit(in, out pcm.Format) {
	p.in, p.output = in, out
	p.framesPerKPTS = max(int64(out.Rate)*1024/metronom.PTSPerSecond, 1)
	p.conv.Configure(in, out)
	p.gaps.Configure(out, p.framesPerKPTS)
	p.est.Reset()
	p.sinkOpen.Store(true)
	p.log.Info("audio out opened", "input", in.String(), "output", out.String())
}
