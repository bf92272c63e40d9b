// Package filter holds the in-place software filters applied to 16-bit PCM
// before it is handed to a sink.
package filter

import (
	"math"

	"audiosync/engine/pcm"
)

func clip16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(v))
}

// Amplifier applies a fixed gain. Mute writes silence.
type Amplifier struct {
	Gain float64
	Mute bool
}

func NewAmplifier() *Amplifier { return &Amplifier{Gain: 1.0} }

// Active reports whether Process changes the signal.
func (a *Amplifier) Active() bool {
	return a.Mute || a.Gain != 1.0
}

// Process scales every PCM16LE sample of b in place.
func (a *Amplifier) Process(b []byte) {
	if a.Mute || a.Gain == 0 {
		clear(b)
		return
	}
	n := len(b) / 2
	for i := 0; i < n; i++ {
		pcm.PutSample(b, i, clip16(float64(pcm.Sample(b, i))*a.Gain))
	}
}

// Compressor is a slow-attack peak normalizer. Each buffer moves the gain
// 0.1% of the way towards the loudest level that does not clip, never
// exceeding that level or the configured ceiling.
type Compressor struct {
	factor  float64
	ceiling float64
}

// NewCompressor returns a disabled compressor.
func NewCompressor() *Compressor {
	return &Compressor{factor: 2.0, ceiling: 1.0}
}

// SetCeiling sets the maximum gain in percent. 100 or less disables the
// compressor.
func (c *Compressor) SetCeiling(percent int) {
	c.ceiling = float64(percent) / 100
}

func (c *Compressor) Ceiling() int { return int(math.Round(c.ceiling * 100)) }

func (c *Compressor) Enabled() bool { return c.ceiling > 1.0 }

// Factor is the current smoothed gain.
func (c *Compressor) Factor() float64 { return c.factor }

// Process compresses b in place and applies amp on top.
func (c *Compressor) Process(b []byte, amp float64) {
	n := len(b) / 2
	peak := 0
	for i := 0; i < n; i++ {
		s := int(pcm.Sample(b, i))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak > 0 {
		fmax := 32767.0 / float64(peak)
		c.factor = c.factor*0.999 + fmax*0.001
		if c.factor > fmax {
			c.factor = fmax
		}
		if c.factor > c.ceiling {
			c.factor = c.ceiling
		}
	}
	g := 0.98 * c.factor * amp
	for i := 0; i < n; i++ {
		pcm.PutSample(b, i, clip16(float64(pcm.Sample(b, i))*g))
	}
}
