//go:build !headless

package sinks

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

// oto allows one context per process; its rate and layout are fixed by the
// first Open.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoErr    error
	otoFormat pcm.Format
)

func otoContext(f pcm.Format, bufferSize time.Duration) (*oto.Context, pcm.Format, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   f.Rate,
			ChannelCount: f.Channels(),
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   bufferSize,
		}
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(op)
		if otoErr == nil {
			<-ready
			otoFormat = pcm.Format{Bits: 16, Rate: f.Rate, Mode: f.Mode}
		}
	})
	return otoCtx, otoFormat, otoErr
}

// OtoDriver plays through the operating system's audio stack.
type OtoDriver struct {
	log        *slog.Logger
	bufferSize time.Duration
	bridge     *ringBridge
	player     *oto.Player
	format     pcm.Format
	open       bool
	muted      bool
	volume     float64
	mu         sync.Mutex
}

// NewOtoDriver returns a driver whose ring holds ringMs of audio.
func NewOtoDriver(ringMs int, logger *slog.Logger) (*OtoDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ringMs <= 0 {
		ringMs = 200
	}
	return &OtoDriver{log: logger, bufferSize: time.Duration(ringMs) * time.Millisecond, volume: 1}, nil
}

func (d *OtoDriver) Name() string { return "oto" }

func (d *OtoDriver) Capabilities() driver.Capability {
	return driver.CapMono | driver.CapStereo | driver.Cap16Bits | driver.CapPCMVol | driver.CapMuteVol
}

func (d *OtoDriver) Open(f pcm.Format) (int, error) {
	if f.Bits != 16 || (f.Mode != pcm.ModeMono && f.Mode != pcm.ModeStereo) {
		return 0, fmt.Errorf("%w: oto sink needs 16-bit mono or stereo, got %v", driver.ErrUnsupportedFormat, f)
	}
	ctx, cf, err := otoContext(f, d.bufferSize/2)
	if err != nil {
		return 0, fmt.Errorf("oto sink: %w", err)
	}
	if cf.Mode != f.Mode {
		return 0, fmt.Errorf("%w: oto context runs %v", driver.ErrUnsupportedFormat, cf.Mode)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.format = cf
	size := cf.Frames(d.bufferSize) * cf.BytesPerFrame()
	if d.bridge == nil || d.bridge.size != size {
		if d.player != nil {
			_ = d.player.Close()
		}
		d.bridge = newRingBridge(size)
		d.player = ctx.NewPlayer(d.bridge)
	}
	d.bridge.closed.Store(false)
	d.bridge.reset()
	d.player.Play()
	d.open = true
	d.log.Debug("oto sink opened", "format", cf.String(), "ringBytes", size)
	return cf.Rate, nil
}

func (d *OtoDriver) Write(samples []byte, frames int) error {
	if !d.open {
		return driver.ErrNotOpen
	}
	d.bridge.write(samples[:frames*d.format.BytesPerFrame()])
	return nil
}

func (d *OtoDriver) Delay() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0
	}
	return (d.bridge.buffered() + d.player.BufferedSize()) / d.format.BytesPerFrame()
}

func (d *OtoDriver) GapTolerance() int64 { return DefaultGapTolerance }

func (d *OtoDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return
	}
	d.open = false
	d.bridge.closed.Store(true)
	d.player.Pause()
}

func (d *OtoDriver) Exit() {
	d.Close()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		if err := d.player.Close(); err != nil {
			d.log.Warn("oto sink close", "err", err)
		}
		d.player = nil
		d.bridge = nil
	}
}

func (d *OtoDriver) Property(p driver.Property) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return 0, driver.ErrNotOpen
	}
	switch p {
	case driver.PropPCMVolume, driver.PropMixerVolume:
		return int(d.volume*100 + 0.5), nil
	case driver.PropMute:
		if d.muted {
			return 1, nil
		}
		return 0, nil
	}
	return 0, driver.ErrPropertyUnsupported
}

func (d *OtoDriver) SetProperty(p driver.Property, v int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return 0, driver.ErrNotOpen
	}
	switch p {
	case driver.PropPCMVolume, driver.PropMixerVolume:
		d.volume = float64(v) / 100
		if !d.muted {
			d.player.SetVolume(d.volume)
		}
		return v, nil
	case driver.PropMute:
		d.muted = v != 0
		if d.muted {
			d.player.SetVolume(0)
		} else {
			d.player.SetVolume(d.volume)
		}
		return v, nil
	}
	return 0, driver.ErrPropertyUnsupported
}

func (d *OtoDriver) Control(c driver.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return driver.ErrNotOpen
	}
	switch c {
	case driver.CmdPause:
		d.player.Pause()
	case driver.CmdResume:
		d.player.Play()
	case driver.CmdFlush:
		d.bridge.reset()
	default:
		return driver.ErrCommandUnsupported
	}
	return nil
}
