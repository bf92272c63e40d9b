package sinks

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/zaf/g711"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

const (
	rtpClockRate = 8000
	rtpFrameDur  = 20 * time.Millisecond
	// Static payload types from RFC 3551.
	payloadPCMU = 0
	payloadPCMA = 8
)

type RTPConfig struct {
	// Codec is "pcmu" or "pcma".
	Codec string
	SSRC  uint32
	// BufferFrames bounds how far ahead of real time packets are sent.
	BufferFrames int
}

// RTPDriver sends output as 20 ms G.711 packets at 8 kHz. Every Write on the
// underlying writer carries exactly one packet, which suits a connected UDP
// socket.
type RTPDriver struct {
	w   io.Writer
	cfg RTPConfig
	log *slog.Logger

	pt      uint8
	encode  func([]byte) []byte
	asm     *pcm.FrameAssembler
	pacer   *pacer
	open    bool
	seq     uint16
	ts      uint32
	marker  bool
	packets atomic.Uint64
}

func NewRTPDriver(w io.Writer, cfg RTPConfig, logger *slog.Logger) (*RTPDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &RTPDriver{
		w:     w,
		cfg:   cfg,
		log:   logger,
		asm:   pcm.NewFrameAssembler(rtpClockRate * int(rtpFrameDur/time.Millisecond) / 1000 * 2),
		pacer: newPacer(cfg.BufferFrames),
	}
	switch strings.ToLower(cfg.Codec) {
	case "", "pcmu", "ulaw":
		d.pt, d.encode = payloadPCMU, g711.EncodeUlaw
	case "pcma", "alaw":
		d.pt, d.encode = payloadPCMA, g711.EncodeAlaw
	default:
		return nil, fmt.Errorf("rtp sink: unsupported codec %q", cfg.Codec)
	}
	return d, nil
}

func (d *RTPDriver) Name() string { return "rtp" }

func (d *RTPDriver) Capabilities() driver.Capability {
	return driver.CapMono | driver.Cap16Bits
}

// Open always runs the sink at 8 kHz; the port resamples to it.
func (d *RTPDriver) Open(f pcm.Format) (int, error) {
	if f.Mode != pcm.ModeMono || f.Bits != 16 {
		return 0, fmt.Errorf("%w: rtp sink needs 16-bit mono, got %v", driver.ErrUnsupportedFormat, f)
	}
	d.asm.Reset()
	d.pacer.reset(rtpClockRate)
	d.marker = true
	d.open = true
	d.log.Debug("rtp sink opened", "payloadType", d.pt, "ssrc", d.cfg.SSRC)
	return rtpClockRate, nil
}

func (d *RTPDriver) Write(samples []byte, frames int) error {
	if !d.open {
		return driver.ErrNotOpen
	}
	for _, frame := range d.asm.Push(samples) {
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         d.marker,
				PayloadType:    d.pt,
				SequenceNumber: d.seq,
				Timestamp:      d.ts,
				SSRC:           d.cfg.SSRC,
			},
			Payload: d.encode(frame),
		}
		data, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("rtp sink: marshal: %w", err)
		}
		if _, err := d.w.Write(data); err != nil {
			return fmt.Errorf("rtp sink: send: %w", err)
		}
		d.marker = false
		d.seq++
		d.ts += uint32(len(frame) / 2)
		d.packets.Add(1)
	}
	d.pacer.wrote(frames)
	return nil
}

// Delay counts frames not yet due on the wire plus the partial packet.
func (d *RTPDriver) Delay() int {
	if !d.open {
		return 0
	}
	q := d.pacer.delay()
	if q < 0 {
		return q
	}
	return q + d.asm.Pending()/2
}

func (d *RTPDriver) GapTolerance() int64 { return DefaultGapTolerance }

func (d *RTPDriver) Close() { d.open = false }

func (d *RTPDriver) Exit() {
	d.open = false
	d.log.Info("rtp sink stopped", "packets", d.Packets(), "ssrc", d.cfg.SSRC)
	if c, ok := d.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.log.Warn("rtp sink close", "err", err)
		}
	}
}

func (d *RTPDriver) Property(driver.Property) (int, error) {
	return 0, driver.ErrPropertyUnsupported
}

func (d *RTPDriver) SetProperty(driver.Property, int) (int, error) {
	return 0, driver.ErrPropertyUnsupported
}

func (d *RTPDriver) Control(c driver.Command) error {
	switch c {
	case driver.CmdPause:
		d.pacer.pause()
	case driver.CmdResume:
		d.pacer.resume()
		d.marker = true
	case driver.CmdFlush:
		d.asm.Reset()
		d.pacer.flush()
		d.marker = true
	default:
		return driver.ErrCommandUnsupported
	}
	return nil
}

// Packets is the number of packets sent.
func (d *RTPDriver) Packets() uint64 { return d.packets.Load() }
