package pipeline

import (
	"sync"

	"audiosync/engine/filter"
	"audiosync/engine/pcm"
)

// Converter turns buffers of the port's input format into buffers of the
// sink's output format. It runs filters in place, stretches to the requested
// frame count and converts channel layout and bit depth through two scratch
// buffers it alternates between.
type Converter struct {
	in, out pcm.Format
	ratio   float64
	excess  float64

	resampler *pcm.Resampler
	scratch   [2]*pcm.Buffer

	mu   sync.Mutex
	comp *filter.Compressor
	amp  *filter.Amplifier
	eq   *filter.Equalizer
}

func NewConverter(s0, s1 *pcm.Buffer) *Converter {
	return &Converter{
		scratch: [2]*pcm.Buffer{s0, s1},
		comp:    filter.NewCompressor(),
		amp:     filter.NewAmplifier(),
		eq:      filter.NewEqualizer(),
		ratio:   1,
	}
}

// Configure sets the formats and resets all conversion state.
func (c *Converter) Configure(in, out pcm.Format) {
	c.in, c.out = in, out
	c.ratio = 1
	if in.Rate > 0 {
		c.ratio = float64(out.Rate) / float64(in.Rate)
	}
	c.resampler = pcm.NewResampler(in.Channels())
	c.mu.Lock()
	c.eq.Configure(in.Rate, in.Channels())
	c.mu.Unlock()
	c.excess = 0
}

// Reset drops the fractional frame carry and filter history, as after a
// flush.
func (c *Converter) Reset() {
	c.excess = 0
	if c.resampler != nil {
		c.resampler.Reset()
	}
	c.mu.Lock()
	c.eq.Reset()
	c.mu.Unlock()
}

// OutputFrames returns how many frames in input frames become at the given
// drift factor and advances the fractional carry.
func (c *Converter) OutputFrames(in int, drift float64) int {
	f := float64(in)*c.ratio*drift + c.excess
	n := int(f)
	c.excess = f - float64(n)
	return n
}

func (c *Converter) SetAmp(percent int) {
	c.mu.Lock()
	c.amp.Gain = float64(percent) / 100
	c.mu.Unlock()
}

func (c *Converter) Amp() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.amp.Gain*100 + 0.5)
}

func (c *Converter) SetAmpMute(mute bool) {
	c.mu.Lock()
	c.amp.Mute = mute
	c.mu.Unlock()
}

func (c *Converter) AmpMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.amp.Mute
}

// SetCompressor sets the compressor ceiling in percent.
func (c *Converter) SetCompressor(percent int) {
	c.mu.Lock()
	c.comp.SetCeiling(percent)
	c.mu.Unlock()
}

func (c *Converter) Compressor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.comp.Ceiling()
}

func (c *Converter) SetEqualizer(band int, dB float64) {
	c.mu.Lock()
	c.eq.SetGain(band, dB)
	c.mu.Unlock()
}

func (c *Converter) Equalizer(band int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eq.Gain(band)
}

func (c *Converter) filter(buf *pcm.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := buf.Bytes()
	if c.comp.Enabled() {
		gain := c.amp.Gain
		if c.amp.Mute {
			gain = 0
		}
		c.comp.Process(samples, gain)
	} else if c.amp.Active() {
		c.amp.Process(samples)
	}
	if c.eq.Active() {
		c.eq.Process(samples, buf.NumFrames)
	}
}

func (c *Converter) other(cur *pcm.Buffer) *pcm.Buffer {
	if cur == c.scratch[0] {
		return c.scratch[1]
	}
	return c.scratch[0]
}

// Convert returns buf itself or a scratch buffer holding the converted
// frames. drift multiplies the nominal rate ratio.
func (c *Converter) Convert(buf *pcm.Buffer, drift float64) *pcm.Buffer {
	in := buf.Format
	if in.Mode.Passthrough() {
		return buf
	}
	if in.Bits == 16 {
		c.filter(buf)
	}

	frames := buf.NumFrames
	outFrames := c.OutputFrames(frames, drift)
	resample := outFrames != frames
	remap := in.Mode != c.out.Mode
	cur := buf

	if in.Bits == 8 && (resample || remap || c.out.Bits == 16) {
		dst := c.other(cur)
		dst.Grow(frames * in.Channels() * 2)
		pcm.U8ToS16(dst.Mem, cur.Bytes())
		cur = c.retag(dst, buf, pcm.Format{Bits: 16, Rate: in.Rate, Mode: in.Mode}, frames)
	}

	if resample {
		dst := c.other(cur)
		dst.Grow(outFrames * in.Channels() * 2)
		c.resampler.Resample(dst.Mem, cur.Bytes(), frames, outFrames)
		cur = c.retag(dst, buf, pcm.Format{Bits: 16, Rate: c.out.Rate, Mode: in.Mode}, outFrames)
	}

	if remap {
		dst := c.other(cur)
		n := cur.NumFrames
		switch {
		case in.Mode == pcm.ModeMono && c.out.Mode == pcm.ModeStereo:
			dst.Grow(n * 4)
			pcm.MonoToStereo(dst.Mem, cur.Bytes())
		case in.Mode == pcm.ModeStereo && c.out.Mode == pcm.ModeMono:
			dst.Grow(n * 2)
			pcm.StereoToMono(dst.Mem, cur.Bytes())
		default:
			// Negotiation never pairs other layouts.
			dst = nil
		}
		if dst != nil {
			cur = c.retag(dst, buf, pcm.Format{Bits: 16, Rate: c.out.Rate, Mode: c.out.Mode}, n)
		}
	}

	if c.out.Bits == 8 && cur.Format.Bits == 16 {
		dst := c.other(cur)
		n := cur.NumFrames
		dst.Grow(n * cur.Format.Channels())
		pcm.S16ToU8(dst.Mem, cur.Bytes())
		cur = c.retag(dst, buf, c.out, n)
	}

	if cur != buf {
		cur.Format.Rate = c.out.Rate
	}
	return cur
}

func (c *Converter) retag(dst, src *pcm.Buffer, f pcm.Format, frames int) *pcm.Buffer {
	dst.Format = f
	dst.NumFrames = frames
	dst.VPTS = src.VPTS
	dst.Stream = src.Stream
	dst.Extra = src.Extra
	return dst
}
