package engine

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"audiosync/engine/drift"
	"audiosync/engine/driver"
	"audiosync/engine/metronom"
	"audiosync/engine/pcm"
	"audiosync/engine/sinks"
)

var stereo44 = pcm.Format{Bits: 16, Rate: 44100, Mode: pcm.ModeStereo}

const testNow = 1_000_000

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPort(t *testing.T, drv driver.Driver, clock metronom.Clock, mutate func(*Config)) *Port {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p := NewPort(drv, clock, cfg, quietLogger())
	t.Cleanup(p.Exit)
	return p
}

func openStream(t *testing.T, p *Port, clock metronom.Clock, name string, f pcm.Format) *Stream {
	t.Helper()
	s := NewStream(name, metronom.New(clock, quietLogger()))
	if _, err := p.Open(s, f); err != nil {
		t.Fatalf("Open(%v): %v", f, err)
	}
	return s
}

func put(p *Port, s *Stream, frames int, pts int64) {
	b := p.GetBuffer(s)
	b.NumFrames = frames
	p.PutBuffer(s, b, pts)
}

func putSamples(p *Port, s *Stream, samples []int16, pts int64) {
	b := p.GetBuffer(s)
	pcm.S16ToBytes(b.Mem[:0], samples)
	b.NumFrames = len(samples) / b.Format.Channels()
	p.PutBuffer(s, b, pts)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func writeFrames(m *sinks.MockDriver) []int {
	var out []int
	for _, w := range m.Writes() {
		out = append(out, w.Frames)
	}
	return out
}

func TestGapDrop(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	put(p, s, 1024, testNow-DefaultMaxGap-1)
	waitFor(t, "drop", func() bool { return p.Stats().DroppedBuffers == 1 })
	waitFor(t, "pool refill", func() bool { return p.pool.Free() == p.pool.Count() })
	if n := len(m.Writes()); n != 0 {
		t.Fatalf("sink got %d writes for a dropped buffer", n)
	}
}

func TestGapFill(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	m.TrackDelay(true)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	put(p, s, 1024, testNow+DefaultMaxGap+1)
	waitFor(t, "play after fill", func() bool { return p.Stats().PlayedBuffers == 1 })

	// 15001 pts at 501 frames per 1024 pts is 7339 frames.
	got := writeFrames(m)
	want := []int{5000, 2339, 1024}
	if len(got) != len(want) {
		t.Fatalf("writes %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("writes %v, want %v", got, want)
		}
	}
	st := p.Stats()
	if st.Fills != 1 || st.FilledFrames != 7339 || st.Corrections != 0 {
		t.Fatalf("stats %+v", st)
	}
	for _, b := range m.Writes()[0].Data {
		if b != 0 {
			t.Fatal("fill wrote non-zero samples")
		}
	}
}

func TestGapWithinTolerancePlays(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	for _, gap := range []int64{-4999, 0, 4999} {
		put(p, s, 1024, testNow+gap)
	}
	waitFor(t, "three buffers", func() bool { return p.Stats().PlayedBuffers == 3 })
	st := p.Stats()
	if st.Fills != 0 || st.DroppedBuffers != 0 || st.Corrections != 0 {
		t.Fatalf("stats %+v", st)
	}
	if m.FramesWritten() != 3*1024 {
		t.Fatalf("frames written %d", m.FramesWritten())
	}
}

func TestClockCorrection(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	a := openStream(t, p, clock, "a", stereo44)
	b := openStream(t, p, clock, "b", stereo44)

	for i := 0; i < DefaultSyncBufs; i++ {
		put(p, a, 256, testNow)
	}
	waitFor(t, "warm-up", func() bool { return p.Stats().PlayedBuffers == DefaultSyncBufs })

	put(p, a, 256, testNow+6000)
	waitFor(t, "correction", func() bool { return p.Stats().PlayedBuffers == DefaultSyncBufs+1 })

	if c := p.Stats().Corrections; c != 1 {
		t.Fatalf("corrections = %d, want 1", c)
	}
	for _, s := range []*Stream{a, b} {
		if off := s.Metronom.VPTSOffset(); off != -1500 {
			t.Fatalf("%s offset = %d, want -1500", s.Name, off)
		}
	}

	// Rate limited: the next excursion inside the interval is just played.
	for i := 0; i < DefaultSyncBufs; i++ {
		put(p, a, 256, testNow+1500)
	}
	put(p, a, 256, testNow+1500+6000)
	waitFor(t, "second batch", func() bool { return p.Stats().PlayedBuffers == 2*DefaultSyncBufs+2 })
	if c := p.Stats().Corrections; c != 1 {
		t.Fatalf("corrections = %d within the sync interval", c)
	}
}

func TestResampleSyncDisablesCorrection(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, func(c *Config) { c.ResampleSync = true })
	s := openStream(t, p, clock, "a", stereo44)

	for i := 0; i <= DefaultSyncBufs; i++ {
		put(p, s, 256, testNow+6000)
	}
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == DefaultSyncBufs+1 })
	if c := p.Stats().Corrections; c != 0 {
		t.Fatalf("corrections = %d with resample sync", c)
	}
	if s.Metronom.VPTSOffset() != 0 {
		t.Fatal("offset moved with resample sync")
	}
}

func TestPrimeOnNegativeDelay(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	m.SetDelay(-1)
	m.TrackDelay(true)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	// After priming the delay is 511 frames, 1044 pts at 44.1 kHz.
	put(p, s, 1024, testNow+1044)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 1 })
	got := writeFrames(m)
	if len(got) != 2 || got[0] != 512 || got[1] != 1024 {
		t.Fatalf("writes %v, want [512 1024]", got)
	}
	if p.Stats().Primes != 1 {
		t.Fatalf("primes = %d", p.Stats().Primes)
	}
}

func TestFlushCompleteness(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	if err := p.Control(driver.CmdPause); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		put(p, s, 1024, testNow+1000)
	}
	waitFor(t, "loop holding a buffer", func() bool { return p.out.Len() == 5 })

	before := p.discard.Load()
	p.Flush()
	if n := p.out.Len(); n != 0 {
		t.Fatalf("out queue holds %d buffers after flush", n)
	}
	if d := p.discard.Load(); d != before {
		t.Fatalf("discard counter = %d, want %d", d, before)
	}
	if p.flush.current() != flushIdle {
		t.Fatalf("barrier left in state %v", p.flush.current())
	}
	waitFor(t, "pool refill", func() bool { return p.pool.Free() == p.pool.Count() })
	if n := len(m.Writes()); n != 0 {
		t.Fatalf("%d writes during flush", n)
	}
	cmds := m.Commands()
	if len(cmds) != 2 || cmds[0] != driver.CmdPause || cmds[1] != driver.CmdFlush {
		t.Fatalf("commands %v", cmds)
	}

	p.Control(driver.CmdResume)
	put(p, s, 1024, testNow)
	waitFor(t, "play after flush", func() bool { return p.Stats().PlayedBuffers == 1 })
}

func TestDiscardDuringFlush(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	p.discard.Add(1)
	put(p, s, 1024, testNow)
	if p.out.Len() != 0 || p.pool.Free() != p.pool.Count() {
		t.Fatal("buffer queued while discarding")
	}
	p.discard.Add(-1)
}

func TestConcurrentFlushes(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			p.Flush()
		}()
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("flush did not return")
		}
	}
	if p.discard.Load() != 0 {
		t.Fatalf("discard = %d", p.discard.Load())
	}
	put(p, s, 64, testNow)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 1 })
}

func TestDrainBarrierOnFormatChange(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	for i := 0; i < 8; i++ {
		put(p, s, 1024, testNow)
	}
	mono48 := pcm.Format{Bits: 16, Rate: 48000, Mode: pcm.ModeMono}
	rate, err := p.Open(s, mono48)
	if err != nil || rate != 48000 {
		t.Fatalf("reopen = %d, %v", rate, err)
	}

	writes := m.Writes()
	if len(writes) != 8 {
		t.Fatalf("%d writes before the format committed, want 8", len(writes))
	}
	for i, w := range writes {
		if w.Format != stereo44 || w.Frames != 1024 {
			t.Fatalf("write %d: %d frames of %v", i, w.Frames, w.Format)
		}
	}
	if st := p.Stats(); st.StaleBuffers != 0 || st.DroppedBuffers != 0 {
		t.Fatalf("stats %+v", st)
	}
	opens := m.Opens()
	if len(opens) != 2 || opens[1] != mono48 {
		t.Fatalf("opens %v", opens)
	}

	put(p, s, 480, testNow)
	waitFor(t, "new format", func() bool { return p.Stats().PlayedBuffers == 9 })
	if w := m.Writes()[8]; w.Format != mono48 || len(w.Data) != 960 {
		t.Fatalf("write after reopen: %v, %d bytes", w.Format, len(w.Data))
	}
}

func TestStaleFormatDropped(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	a := openStream(t, p, clock, "a", stereo44)
	openStream(t, p, clock, "b", pcm.Format{Bits: 16, Rate: 22050, Mode: pcm.ModeMono})

	put(p, a, 1024, testNow)
	waitFor(t, "stale drop", func() bool { return p.Stats().StaleBuffers == 1 })
	if len(m.Writes()) != 0 {
		t.Fatal("stale buffer reached the sink")
	}
}

func TestNegotiationFallback(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(driver.CapStereo | driver.Cap16Bits)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", pcm.Format{Bits: 8, Rate: 22050, Mode: pcm.ModeMono})

	want := pcm.Format{Bits: 16, Rate: 22050, Mode: pcm.ModeStereo}
	if m.Format() != want {
		t.Fatalf("sink opened with %v, want %v", m.Format(), want)
	}

	b := p.GetBuffer(s)
	for i := 0; i < 100; i++ {
		b.Mem[i] = 0xC0
	}
	b.NumFrames = 100
	p.PutBuffer(s, b, testNow)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 1 })
	w := m.Writes()[0]
	if w.Frames != 100 || len(w.Data) != 400 {
		t.Fatalf("wrote %d frames, %d bytes", w.Frames, len(w.Data))
	}
	if l, r := pcm.Sample(w.Data, 0), pcm.Sample(w.Data, 1); l != 0x40<<8 || r != l {
		t.Fatalf("first frame %d/%d", l, r)
	}
}

func TestNegotiationRefusesMultichannel(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(driver.CapStereo | driver.Cap16Bits)
	p := newTestPort(t, m, clock, nil)

	s := NewStream("a", metronom.New(clock, nil))
	f := pcm.Format{Bits: 16, Rate: 48000, Mode: pcm.Mode5_1Channel}
	_, err := p.Open(s, f)
	var nerr *NegotiationError
	if !errors.As(err, &nerr) || nerr.Format != f {
		t.Fatalf("Open = %v, want NegotiationError for %v", err, f)
	}
	if !errors.Is(err, driver.ErrUnsupportedFormat) {
		t.Fatalf("error %v does not wrap ErrUnsupportedFormat", err)
	}
	if p.Status(s).SinkOpen || len(m.Opens()) != 0 {
		t.Fatal("sink opened for a refused format")
	}
}

func TestNegotiationRevert(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	m.RejectOpen(func(f pcm.Format) error {
		if f.Rate == 96000 {
			return errors.New("rate not supported")
		}
		return nil
	})
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	if _, err := p.Open(s, pcm.Format{Bits: 16, Rate: 96000, Mode: pcm.ModeStereo}); err == nil {
		t.Fatal("Open at 96 kHz succeeded")
	}
	opens := m.Opens()
	if len(opens) != 3 || opens[2] != stereo44 {
		t.Fatalf("opens %v, want a reopen of %v", opens, stereo44)
	}
	st := p.Status(s)
	if !st.SinkOpen || st.Input != stereo44 {
		t.Fatalf("status %+v", st)
	}
	put(p, s, 100, testNow)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 1 })
}

func TestSinkRateResamples(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	m.SetRate(48000)
	p := newTestPort(t, m, clock, nil)
	s := NewStream("a", metronom.New(clock, nil))
	rate, err := p.Open(s, stereo44)
	if err != nil || rate != 48000 {
		t.Fatalf("Open = %d, %v", rate, err)
	}
	put(p, s, 1024, testNow)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 1 })
	if got := m.FramesWritten(); got != 1114 {
		t.Fatalf("wrote %d frames, want 1114", got)
	}
}

func TestGatedPauseDropsLateBuffers(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	p.Control(driver.CmdPause)
	put(p, s, 1024, testNow+100)
	time.Sleep(3 * pauseSlice)
	if len(m.Writes()) != 0 {
		t.Fatal("paused port wrote")
	}
	clock.Advance(1000)
	waitFor(t, "expired buffer", func() bool { return p.Stats().DroppedBuffers == 1 })

	p.Control(driver.CmdResume)
	put(p, s, 1024, testNow+1000)
	waitFor(t, "play after resume", func() bool { return p.Stats().PlayedBuffers == 1 })
}

func TestPauseNonePlaysThrough(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, func(c *Config) { c.PauseMode = PauseNone })
	s := openStream(t, p, clock, "a", stereo44)

	p.Control(driver.CmdPause)
	put(p, s, 1024, testNow)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 1 })
}

func TestTrickModeIgnoresSpeed(t *testing.T) {
	t.Parallel()
	clock := metronom.NewSystemClock()
	clock.SetSpeed(2)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, func(c *Config) { c.PauseMode = PauseTrick })
	if _, err := p.SetProperty(PropPauseMode, int(PauseGated)); err != nil {
		t.Fatal(err)
	}
	if !p.gated() {
		t.Fatal("gated mode does not hold at 2x")
	}
	p.SetProperty(PropPauseMode, int(PauseTrick))
	if p.gated() {
		t.Fatal("trick mode holds at 2x")
	}
	clock.Pause()
	if !p.gated() {
		t.Fatal("trick mode does not hold a paused clock")
	}
}

func TestCloseLastStreamClosesSink(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	a := openStream(t, p, clock, "a", stereo44)
	b := openStream(t, p, clock, "b", stereo44)

	put(p, a, 1024, testNow)
	p.Close(a)
	if !m.IsOpen() || p.Status(a).Attached {
		t.Fatal("first close changed the sink or left a attached")
	}
	p.Close(b)
	if m.IsOpen() || p.Status(b).SinkOpen {
		t.Fatal("sink still open after the last close")
	}
	if m.FramesWritten() != 1024 {
		t.Fatalf("queued audio not played out: %d frames", m.FramesWritten())
	}
	if n, _ := p.Property(PropNumStreams); n != 0 {
		t.Fatalf("streams = %d", n)
	}
}

func TestExitDrains(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := NewPort(m, clock, DefaultConfig(), quietLogger())
	s := openStream(t, p, clock, "a", stereo44)

	for i := 0; i < 5; i++ {
		put(p, s, 1024, testNow)
	}
	p.Exit()
	if got := m.FramesWritten(); got != 5*1024 {
		t.Fatalf("played %d frames before exit, want %d", got, 5*1024)
	}
	if m.Exits() != 1 || m.IsOpen() {
		t.Fatalf("exits %d open %v", m.Exits(), m.IsOpen())
	}
	if _, err := p.Open(s, stereo44); !errors.Is(err, ErrPortClosed) {
		t.Fatalf("Open after Exit = %v", err)
	}
	p.Exit()
	p.Flush()
}

func TestWriteErrorsRecycle(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	m.SetWriteError(errors.New("device gone"))
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	for i := 0; i < 3; i++ {
		put(p, s, 1024, testNow)
	}
	waitFor(t, "errors", func() bool { return p.Stats().WriteErrors == 3 })
	waitFor(t, "pool refill", func() bool { return p.pool.Free() == p.pool.Count() })
}

func TestPutBufferPanicsOverCapacity(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	p := newTestPort(t, sinks.NewMockDriver(0), clock, nil)
	s := openStream(t, p, clock, "a", stereo44)

	b := p.GetBuffer(s)
	b.NumFrames = len(b.Mem)/4 + 1
	defer func() {
		if recover() == nil {
			t.Fatal("no panic for an over-capacity buffer")
		}
		b.NumFrames = 0
		p.pool.Release(b)
	}()
	p.PutBuffer(s, b, testNow)
}

func TestPutBufferInterpolatesPTS(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", pcm.Format{Bits: 16, Rate: 48000, Mode: pcm.ModeStereo})

	p.Control(driver.CmdPause)
	b0 := p.GetBuffer(s)
	b0.NumFrames = 480
	p.PutBuffer(s, b0, testNow+5000)
	b1 := p.GetBuffer(s)
	b1.NumFrames = 480
	p.PutBuffer(s, b1, 0)
	// 480 frames at 48 kHz last 900 pts.
	if b1.VPTS != testNow+5900 {
		t.Fatalf("interpolated vpts = %d, want %d", b1.VPTS, testNow+5900)
	}
	p.Control(driver.CmdResume)
}

func TestStatus(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := NewStream("a", metronom.New(clock, nil))
	if st := p.Status(s); st.Attached || st.SinkOpen || st.Free != pcm.DefaultNumBuffers {
		t.Fatalf("status before open %+v", st)
	}
	p.Open(s, stereo44)
	st := p.Status(s)
	if !st.Attached || !st.SinkOpen || st.Input != stereo44 || st.Output != stereo44 || st.Streams != 1 {
		t.Fatalf("status %+v", st)
	}
	if s.Metronom.AudioRate() != metronom.AudioStep(44100) {
		t.Fatalf("audio step %d", s.Metronom.AudioRate())
	}
}

// returnsWithin fails the test if fn is still running after d.
func returnsWithin(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %v", what, d)
	}
}

func pausedWithQueue(t *testing.T) (*Port, *sinks.MockDriver, *Stream) {
	t.Helper()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", stereo44)
	if err := p.Control(driver.CmdPause); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		put(p, s, 1024, testNow+1000)
	}
	return p, m, s
}

func TestCloseWhilePausedDiscards(t *testing.T) {
	t.Parallel()
	p, m, s := pausedWithQueue(t)

	returnsWithin(t, 2*time.Second, "Close of the last stream while paused", func() { p.Close(s) })
	waitFor(t, "discards", func() bool { return p.Stats().DroppedBuffers == 3 })
	if st := p.Stats(); st.PlayedBuffers != 0 {
		t.Fatalf("played %d buffers while paused", st.PlayedBuffers)
	}
	if m.IsOpen() {
		t.Fatal("sink still open after the last Close")
	}
	if p.discard.Load() != 0 || p.draining.Load() != 0 {
		t.Fatalf("discard %d draining %d after Close", p.discard.Load(), p.draining.Load())
	}
	returnsWithin(t, 2*time.Second, "Exit after Close", p.Exit)
}

func TestReopenWhilePausedDiscards(t *testing.T) {
	t.Parallel()
	p, m, _ := pausedWithQueue(t)

	mono48 := pcm.Format{Bits: 16, Rate: 48000, Mode: pcm.ModeMono}
	var err error
	returnsWithin(t, 2*time.Second, "Open of a new format while paused", func() {
		_, err = p.Open(NewStream("b", nil), mono48)
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.Format() != mono48 || len(m.Writes()) != 0 {
		t.Fatalf("sink format %v with %d writes", m.Format(), len(m.Writes()))
	}
}

func TestExitWhilePausedDiscards(t *testing.T) {
	t.Parallel()
	p, m, _ := pausedWithQueue(t)

	returnsWithin(t, 2*time.Second, "Exit while paused", p.Exit)
	if m.Exits() != 1 || len(m.Writes()) != 0 {
		t.Fatalf("exits %d writes %d", m.Exits(), len(m.Writes()))
	}
	if free := p.pool.Free(); free != p.pool.Count() {
		t.Fatalf("%d of %d buffers back in the pool", free, p.pool.Count())
	}
}

func TestFlushRacingExit(t *testing.T) {
	t.Parallel()
	for i := 0; i < 100; i++ {
		clock := metronom.NewManualClock(testNow)
		p := NewPort(sinks.NewMockDriver(0), clock, DefaultConfig(), quietLogger())
		openStream(t, p, clock, "a", stereo44)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Flush()
		}()
		go func() {
			defer wg.Done()
			p.Exit()
		}()
		returnsWithin(t, 2*time.Second, "Flush racing Exit", wg.Wait)
	}
}

func TestDriftEstimatorOncePerBuffer(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	m.TrackDelay(true)
	p := newTestPort(t, m, clock, func(c *Config) { c.ResampleSync = true })
	s := openStream(t, p, clock, "a", stereo44)

	// The first look sees a gap over MaxGap and invalidates the estimate;
	// after the fill the same buffer is nearly on time and plays.
	put(p, s, 1024, testNow+20000)
	waitFor(t, "play after fill", func() bool { return p.Stats().PlayedBuffers == 1 })
	if st := p.Stats(); st.Fills != 1 {
		t.Fatalf("stats %+v", st)
	}
	if got := p.est.State(); got != drift.Invalid {
		t.Fatalf("estimator %v after one buffer, want %v", got, drift.Invalid)
	}
}

// lockedBuffer collects log output written from the loop goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGapFillLogsThroughPortLogger(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	m.TrackDelay(true)
	var out lockedBuffer
	p := NewPort(m, clock, DefaultConfig(), slog.New(slog.NewTextHandler(&out, nil)))
	t.Cleanup(p.Exit)
	s := openStream(t, p, clock, "a", stereo44)

	put(p, s, 1024, testNow+10*90000)
	waitFor(t, "play after fill", func() bool { return p.Stats().PlayedBuffers == 1 })
	if log := out.String(); !strings.Contains(log, "large gap clamped") || !strings.Contains(log, "driver=mock") {
		t.Fatalf("clamp not logged through the port logger:\n%s", log)
	}
}
