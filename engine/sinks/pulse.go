//go:build linux && !headless

package sinks

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jfreymuth/pulse"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

// PulseDriver plays through a PulseAudio (or PipeWire) server using the
// native protocol, without cgo.
type PulseDriver struct {
	log     *slog.Logger
	ringMs  int
	latency float64

	mu     sync.Mutex
	client *pulse.Client
	stream *pulse.PlaybackStream
	bridge *ringBridge
	format pcm.Format
	open   bool
	raw    []byte
}

// NewPulseDriver connects lazily on the first Open. latencyMs is the
// server-side latency requested for the stream.
func NewPulseDriver(ringMs, latencyMs int, logger *slog.Logger) *PulseDriver {
	if logger == nil {
		logger = slog.Default()
	}
	if ringMs <= 0 {
		ringMs = 200
	}
	if latencyMs <= 0 {
		latencyMs = 30
	}
	return &PulseDriver{log: logger, ringMs: ringMs, latency: float64(latencyMs) / 1000}
}

func (d *PulseDriver) Name() string { return "pulse" }

func (d *PulseDriver) Capabilities() driver.Capability {
	return driver.CapMono | driver.CapStereo | driver.Cap16Bits
}

// read converts ring bytes into the float samples the stream pulls.
func (d *PulseDriver) read(out []float32) (int, error) {
	need := len(out) * 2
	if cap(d.raw) < need {
		d.raw = make([]byte, need)
	}
	raw := d.raw[:need]
	d.bridge.Read(raw)
	for i := range out {
		out[i] = float32(pcm.Sample(raw, i)) / 32768
	}
	return len(out), nil
}

func (d *PulseDriver) Open(f pcm.Format) (int, error) {
	if f.Bits != 16 || (f.Mode != pcm.ModeMono && f.Mode != pcm.ModeStereo) {
		return 0, fmt.Errorf("%w: pulse sink needs 16-bit mono or stereo, got %v", driver.ErrUnsupportedFormat, f)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeStreamLocked()

	if d.client == nil {
		c, err := pulse.NewClient()
		if err != nil {
			return 0, fmt.Errorf("pulse sink: connect: %w", err)
		}
		d.client = c
	}
	d.format = f
	d.bridge = newRingBridge(f.Rate * d.ringMs / 1000 * f.BytesPerFrame())

	layout := pulse.PlaybackMono
	if f.Mode == pcm.ModeStereo {
		layout = pulse.PlaybackStereo
	}
	stream, err := d.client.NewPlayback(
		pulse.Float32Reader(d.read),
		layout,
		pulse.PlaybackSampleRate(f.Rate),
		pulse.PlaybackLatency(d.latency),
	)
	if err != nil {
		return 0, fmt.Errorf("pulse sink: new playback: %w", err)
	}
	stream.Start()
	d.stream = stream
	d.open = true
	d.log.Debug("pulse sink opened", "format", f.String(), "latency", d.latency)
	return f.Rate, nil
}

func (d *PulseDriver) Write(samples []byte, frames int) error {
	if !d.open {
		return driver.ErrNotOpen
	}
	d.bridge.write(samples[:frames*d.format.BytesPerFrame()])
	return nil
}

// Delay is the ring content plus the requested server latency.
func (d *PulseDriver) Delay() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0
	}
	return d.bridge.buffered()/d.format.BytesPerFrame() + int(d.latency*float64(d.format.Rate))
}

func (d *PulseDriver) GapTolerance() int64 { return DefaultGapTolerance }

func (d *PulseDriver) closeStreamLocked() {
	if d.stream != nil {
		d.bridge.closed.Store(true)
		d.stream.Close()
		d.stream = nil
	}
	d.open = false
}

func (d *PulseDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeStreamLocked()
}

func (d *PulseDriver) Exit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeStreamLocked()
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
}

func (d *PulseDriver) Property(driver.Property) (int, error) {
	return 0, driver.ErrPropertyUnsupported
}

func (d *PulseDriver) SetProperty(driver.Property, int) (int, error) {
	return 0, driver.ErrPropertyUnsupported
}

// Control pauses by feeding silence while the ring keeps its content.
func (d *PulseDriver) Control(c driver.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bridge == nil {
		return driver.ErrNotOpen
	}
	switch c {
	case driver.CmdPause:
		d.bridge.paused.Store(true)
	case driver.CmdResume:
		d.bridge.paused.Store(false)
	case driver.CmdFlush:
		d.bridge.reset()
	default:
		return driver.ErrCommandUnsupported
	}
	return nil
}
