package sinks

import (
	"log/slog"
	"sync/atomic"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

// DefaultGapTolerance is the timing error, in pts, a software sink absorbs
// before the loop corrects the clock.
const DefaultGapTolerance = 5000

const allPCMCaps = driver.CapMono | driver.CapStereo | driver.Cap4Channel | driver.Cap4_1Channel |
	driver.Cap5Channel | driver.Cap5_1Channel | driver.Cap8Bits | driver.Cap16Bits

// NullDriver discards samples in real time. It accepts every PCM layout.
type NullDriver struct {
	log    *slog.Logger
	pacer  *pacer
	format pcm.Format
	open   bool
	frames atomic.Uint64
}

// NewNullDriver returns a sink that queues at most bufferFrames before
// blocking writers. Zero means never block.
func NewNullDriver(bufferFrames int, logger *slog.Logger) *NullDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &NullDriver{log: logger, pacer: newPacer(bufferFrames)}
}

func (d *NullDriver) Name() string { return "null" }

func (d *NullDriver) Capabilities() driver.Capability {
	return allPCMCaps | driver.CapA52 | driver.CapAC5
}

func (d *NullDriver) Open(f pcm.Format) (int, error) {
	d.format = f
	d.open = true
	d.pacer.reset(f.Rate)
	d.log.Debug("null sink opened", "format", f.String())
	return f.Rate, nil
}

func (d *NullDriver) Write(_ []byte, frames int) error {
	if !d.open {
		return driver.ErrNotOpen
	}
	d.frames.Add(uint64(frames))
	d.pacer.wrote(frames)
	return nil
}

func (d *NullDriver) Delay() int {
	if !d.open {
		return 0
	}
	return d.pacer.delay()
}

func (d *NullDriver) GapTolerance() int64 { return DefaultGapTolerance }

func (d *NullDriver) Close() { d.open = false }

func (d *NullDriver) Exit() { d.open = false }

func (d *NullDriver) Property(driver.Property) (int, error) {
	return 0, driver.ErrPropertyUnsupported
}

func (d *NullDriver) SetProperty(driver.Property, int) (int, error) {
	return 0, driver.ErrPropertyUnsupported
}

func (d *NullDriver) Control(c driver.Command) error {
	switch c {
	case driver.CmdPause:
		d.pacer.pause()
	case driver.CmdResume:
		d.pacer.resume()
	case driver.CmdFlush:
		d.pacer.flush()
	default:
		return driver.ErrCommandUnsupported
	}
	return nil
}

// Frames is the total number of frames written.
func (d *NullDriver) Frames() uint64 { return d.frames.Load() }
