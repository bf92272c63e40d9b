package sinks

import (
	"fmt"
	"log/slog"

	msdk "github.com/livekit/media-sdk"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

// MediaSDKDriver feeds output into a media-sdk PCM16 writer, such as an
// encoder chain or an RTP track. When the writer runs at another rate a
// ResampleWriter adapts to it, so Open accepts any rate.
type MediaSDKDriver struct {
	target msdk.PCM16Writer
	w      msdk.PCM16Writer
	log    *slog.Logger
	pacer  *pacer
	open   bool
	rate   int
	tmp    msdk.PCM16Sample
}

func NewMediaSDKDriver(target msdk.PCM16Writer, bufferFrames int, logger *slog.Logger) *MediaSDKDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaSDKDriver{target: target, log: logger, pacer: newPacer(bufferFrames)}
}

func (d *MediaSDKDriver) Name() string { return "mediasdk" }

func (d *MediaSDKDriver) String() string {
	return fmt.Sprintf("MediaSDKDriver(%dHz) -> %s", d.rate, d.target.String())
}

func (d *MediaSDKDriver) Capabilities() driver.Capability {
	return driver.CapMono | driver.Cap16Bits
}

func (d *MediaSDKDriver) Open(f pcm.Format) (int, error) {
	if f.Mode != pcm.ModeMono || f.Bits != 16 {
		return 0, fmt.Errorf("%w: media-sdk sink needs 16-bit mono, got %v", driver.ErrUnsupportedFormat, f)
	}
	d.w = d.target
	if f.Rate != d.target.SampleRate() {
		d.w = msdk.ResampleWriter(d.target, f.Rate)
	}
	d.rate = f.Rate
	d.pacer.reset(f.Rate)
	d.open = true
	d.log.Debug("media-sdk sink opened", "sink", d.String())
	return f.Rate, nil
}

func (d *MediaSDKDriver) Write(samples []byte, frames int) error {
	if !d.open {
		return driver.ErrNotOpen
	}
	d.tmp = pcm.BytesToS16(d.tmp, samples[:frames*2])
	if err := d.w.WriteSample(d.tmp); err != nil {
		return fmt.Errorf("media-sdk sink: %w", err)
	}
	d.pacer.wrote(frames)
	return nil
}

func (d *MediaSDKDriver) Delay() int {
	if !d.open {
		return 0
	}
	return d.pacer.delay()
}

func (d *MediaSDKDriver) GapTolerance() int64 { return DefaultGapTolerance }

func (d *MediaSDKDriver) Close() { d.open = false }

func (d *MediaSDKDriver) Exit() {
	d.open = false
	if err := d.target.Close(); err != nil {
		d.log.Warn("media-sdk sink close", "err", err)
	}
}

func (d *MediaSDKDriver) Property(driver.Property) (int, error) {
	return 0, driver.ErrPropertyUnsupported
}

func (d *MediaSDKDriver) SetProperty(driver.Property, int) (int, error) {
	return 0, driver.ErrPropertyUnsupported
}

func (d *MediaSDKDriver) Control(c driver.Command) error {
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
