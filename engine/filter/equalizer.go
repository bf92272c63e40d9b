package filter

import (
	"math"

	"audiosync/engine/pcm"
)

// NumBands is the number of equalizer bands.
const NumBands = 10

// BandFrequencies are the band centre frequencies in Hz.
var BandFrequencies = [NumBands]float64{31, 62, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

const (
	eqShift = 28
	eqOne   = 1 << eqShift
	eqQ     = 1.414
	// MaxGainDB bounds band gains in either direction.
	MaxGainDB = 12
)

type bandCoef struct {
	alpha, beta, gamma int64
	on                 bool
}

type bandHistory struct {
	x, y [3]int64
}

// Equalizer is a 10-band graphic equalizer. Each band is a constant-peak
// band-pass section y = a(x - x[k]) + g*y[j] - b*y[k] in 28-bit fixed point;
// the boosted or cut band outputs are added to the dry signal. With every
// band at 0 dB the output equals the input exactly.
type Equalizer struct {
	rate     int
	channels int
	gainDB   [NumBands]float64
	gains    [NumBands]int64
	coef     [NumBands]bandCoef
	hist     [][NumBands]bandHistory
	i, j, k  int
}

func NewEqualizer() *Equalizer {
	return &Equalizer{}
}

// Configure computes coefficients for rate and clears history. Bands at or
// above 0.45*rate are disabled.
func (e *Equalizer) Configure(rate, channels int) {
	e.rate = rate
	e.channels = channels
	for b, f := range BandFrequencies {
		if rate <= 0 || f >= 0.45*float64(rate) {
			e.coef[b] = bandCoef{}
			continue
		}
		w0 := 2 * math.Pi * f / float64(rate)
		ar := math.Sin(w0) / (2 * eqQ)
		e.coef[b] = bandCoef{
			alpha: int64(ar / (1 + ar) * eqOne),
			gamma: int64(2 * math.Cos(w0) / (1 + ar) * eqOne),
			beta:  int64((1 - ar) / (1 + ar) * eqOne),
			on:    true,
		}
	}
	e.Reset()
}

// Reset clears the filter history.
func (e *Equalizer) Reset() {
	if cap(e.hist) < e.channels {
		e.hist = make([][NumBands]bandHistory, e.channels)
	} else {
		e.hist = e.hist[:e.channels]
		clear(e.hist)
	}
	e.i, e.j, e.k = 0, 2, 1
}

// SetGain sets band b to dB, clamped to +-MaxGainDB.
func (e *Equalizer) SetGain(b int, dB float64) {
	if b < 0 || b >= NumBands {
		return
	}
	dB = math.Max(-MaxGainDB, math.Min(MaxGainDB, dB))
	e.gainDB[b] = dB
	e.gains[b] = int64((math.Pow(10, dB/20) - 1) / 4 * eqOne)
}

func (e *Equalizer) Gain(b int) float64 {
	if b < 0 || b >= NumBands {
		return 0
	}
	return e.gainDB[b]
}

// BandEnabled reports whether band b is within the usable range of the
// configured rate.
func (e *Equalizer) BandEnabled(b int) bool {
	return b >= 0 && b < NumBands && e.coef[b].on
}

// Active reports whether any enabled band has a non-zero gain.
func (e *Equalizer) Active() bool {
	for b := range e.gains {
		if e.coef[b].on && e.gains[b] != 0 {
			return true
		}
	}
	return false
}

// Process filters interleaved PCM16LE frames in place.
func (e *Equalizer) Process(buf []byte, frames int) {
	ch := e.channels
	if ch <= 0 {
		return
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < ch; c++ {
			idx := f*ch + c
			x := int64(pcm.Sample(buf, idx)) << 12
			h := &e.hist[c]
			var sum int64
			for b := 0; b < NumBands; b++ {
				co := &e.coef[b]
				if !co.on {
					continue
				}
				hb := &h[b]
				hb.x[e.i] = x
				y := (co.alpha*(x-hb.x[e.k]) + co.gamma*hb.y[e.j] - co.beta*hb.y[e.k]) >> eqShift
				hb.y[e.i] = y
				sum += (e.gains[b] * y) >> eqShift
			}
			out := ((sum + x>>2) << 2) >> 12
			if out > math.MaxInt16 {
				out = math.MaxInt16
			} else if out < math.MinInt16 {
				out = math.MinInt16
			}
			pcm.PutSample(buf, idx, int16(out))
		}
		e.i, e.j, e.k = (e.i+1)%3, e.i, e.j
	}
}
