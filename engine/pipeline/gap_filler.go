package pipeline

import (
	"encoding/binary"
	"time"

	"github.com/livekit/protocol/logger"

	"audiosync/engine/pcm"
)

const (
	// ZeroBufFrames is the largest chunk of silence written at once.
	ZeroBufFrames = 5000
	// MaxFillFrames bounds a single fill so a bogus gap cannot stall the loop.
	MaxFillFrames = 65536
	// PrimeFrames is written to a sink that reports a negative delay.
	PrimeFrames = 512
	// PauseBurstFrames is the length of one IEC 61937 pause burst.
	PauseBurstFrames = 1536

	clampLogPeriod = 15 * time.Second
)

// Writer is the part of a sink the filler needs.
type Writer interface {
	Write(samples []byte, frames int) error
}

// GapFiller writes silence to close a timing gap between the sink and the
// next buffer. Passthrough outputs get IEC 61937 pause bursts instead of
// zero PCM so the receiver stays locked.
type GapFiller struct {
	format        pcm.Format
	framesPerKPTS int64
	zero          []byte
	burst         []byte
	log           logger.Logger
	lastClampLog  time.Time
}

func NewGapFiller(log logger.Logger) *GapFiller {
	return &GapFiller{log: log}
}

func (g *GapFiller) String() string {
	return "GapFiller(" + g.format.String() + ")"
}

// Configure prepares zero and burst buffers for the output format.
// framesPerKPTS is output frames per 1024 pts.
func (g *GapFiller) Configure(out pcm.Format, framesPerKPTS int64) {
	g.format = out
	g.framesPerKPTS = framesPerKPTS
	size := ZeroBufFrames * out.BytesPerFrame()
	if cap(g.zero) < size {
		g.zero = make([]byte, size)
	}
	g.zero = g.zero[:size]
	pcm.Silence(g.zero, out)

	if out.Mode.Passthrough() {
		g.burst = make([]byte, PauseBurstFrames*out.BytesPerFrame())
		binary.LittleEndian.PutUint16(g.burst[0:], 0xF872)
		binary.LittleEndian.PutUint16(g.burst[2:], 0x4E1F)
		binary.LittleEndian.PutUint16(g.burst[4:], 0x0003)
		binary.LittleEndian.PutUint16(g.burst[6:], 0x0020)
	} else {
		g.burst = nil
	}
}

// FramesFor converts a pts span to output frames.
func (g *GapFiller) FramesFor(pts int64) int {
	return int(pts * g.framesPerKPTS / 1024)
}

// Fill writes silence covering pts and returns the frames written.
func (g *GapFiller) Fill(w Writer, pts int64) (int, error) {
	frames := g.FramesFor(pts)
	if frames > MaxFillFrames {
		if g.log != nil && time.Since(g.lastClampLog) >= clampLogPeriod {
			g.log.Infow("large gap clamped", "gapPTS", pts, "frames", frames, "max", MaxFillFrames)
			g.lastClampLog = time.Now()
		}
		frames = MaxFillFrames
	}
	if frames <= 0 {
		return 0, nil
	}
	var (
		n   int
		err error
	)
	if g.burst != nil {
		n, err = g.writeBursts(w, frames)
	} else {
		n, err = g.writeZero(w, frames)
	}
	if g.log != nil {
		g.log.Debugw("gap filled", "gapPTS", pts, "frames", n)
	}
	return n, err
}

// Prime writes PrimeFrames of silence to start a sink that has no delay yet.
func (g *GapFiller) Prime(w Writer) error {
	if g.burst != nil {
		_, err := g.writeBursts(w, 1)
		return err
	}
	_, err := g.writeZero(w, PrimeFrames)
	return err
}

func (g *GapFiller) writeZero(w Writer, frames int) (int, error) {
	bpf := g.format.BytesPerFrame()
	written := 0
	for frames > 0 {
		n := min(frames, ZeroBufFrames)
		if err := w.Write(g.zero[:n*bpf], n); err != nil {
			return written, err
		}
		written += n
		frames -= n
	}
	return written, nil
}

func (g *GapFiller) writeBursts(w Writer, frames int) (int, error) {
	bursts := (frames + PauseBurstFrames - 1) / PauseBurstFrames
	written := 0
	for i := 0; i < bursts; i++ {
		if err := w.Write(g.burst, PauseBurstFrames); err != nil {
			return written, err
		}
		written += PauseBurstFrames
	}
	return written, nil
}
