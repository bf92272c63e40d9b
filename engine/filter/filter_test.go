package filter

import (
	"math"
	"math/rand"
	"testing"

	"audiosync/engine/pcm"
)

func tone(freq float64, rate, frames, channels int, amp float64) []byte {
	s := make([]int16, frames*channels)
	for f := 0; f < frames; f++ {
		v := int16(amp * math.Sin(2*math.Pi*freq*float64(f)/float64(rate)))
		for c := 0; c < channels; c++ {
			s[f*channels+c] = v
		}
	}
	return pcm.S16ToBytes(nil, s)
}

func peak(b []byte) int {
	p := 0
	for i := 0; i < len(b)/2; i++ {
		v := int(pcm.Sample(b, i))
		if v < 0 {
			v = -v
		}
		if v > p {
			p = v
		}
	}
	return p
}

func TestEqualizerFlatIsIdentity(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(1))
	in := make([]int16, 4096*2)
	for i := range in {
		in[i] = int16(rng.Intn(65536) - 32768)
	}
	buf := pcm.S16ToBytes(nil, in)

	e := NewEqualizer()
	e.Configure(44100, 2)
	for b := 0; b < NumBands; b++ {
		e.SetGain(b, 0)
	}
	if e.Active() {
		t.Fatal("flat equalizer reports active")
	}
	e.Process(buf, 4096)
	for i, want := range in {
		if got := pcm.Sample(buf, i); got != want {
			t.Fatalf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestEqualizerBoostsBandCentre(t *testing.T) {
	t.Parallel()
	const rate = 48000
	e := NewEqualizer()
	e.Configure(rate, 1)
	e.SetGain(5, 20*math.Log10(2))

	buf := tone(1000, rate, rate/2, 1, 8000)
	e.Process(buf, rate/2)
	got := peak(buf[len(buf)/2:])
	if got < 15000 || got > 17000 {
		t.Fatalf("1 kHz peak after +6 dB = %d, want ~16000", got)
	}
}

func TestEqualizerDisablesHighBands(t *testing.T) {
	t.Parallel()
	e := NewEqualizer()
	e.Configure(8000, 1)
	for b, f := range BandFrequencies {
		want := f < 3600
		if got := e.BandEnabled(b); got != want {
			t.Errorf("band %v Hz enabled = %v, want %v", f, got, want)
		}
	}
	e.SetGain(9, 6)
	if e.Active() {
		t.Fatal("gain on a disabled band must not activate the equalizer")
	}
}

func TestEqualizerClampsGain(t *testing.T) {
	t.Parallel()
	e := NewEqualizer()
	e.SetGain(0, 40)
	if got := e.Gain(0); got != MaxGainDB {
		t.Fatalf("Gain = %v, want %v", got, MaxGainDB)
	}
}

func TestCompressorRaisesQuietSignal(t *testing.T) {
	t.Parallel()
	c := NewCompressor()
	c.SetCeiling(200)
	if !c.Enabled() {
		t.Fatal("compressor at 200% disabled")
	}
	buf := pcm.S16ToBytes(nil, []int16{1000, -1000, 500})
	c.Process(buf, 1.0)
	if got := pcm.Sample(buf, 0); got != 1960 {
		t.Fatalf("sample = %d, want 1960", got)
	}
	if got := pcm.Sample(buf, 1); got != -1960 {
		t.Fatalf("sample = %d, want -1960", got)
	}
}

func TestCompressorNeverExceedsHeadroom(t *testing.T) {
	t.Parallel()
	c := NewCompressor()
	c.SetCeiling(400)
	for i := 0; i < 100; i++ {
		buf := tone(440, 44100, 1024, 2, 30000)
		c.Process(buf, 1.0)
		if p := peak(buf); p >= 32767 {
			t.Fatalf("buffer %d clipped: peak %d", i, p)
		}
	}
	if f := c.Factor(); f > 32767.0/29000 {
		t.Fatalf("factor %v exceeds headroom", f)
	}
}

func TestCompressorDisabled(t *testing.T) {
	t.Parallel()
	c := NewCompressor()
	c.SetCeiling(100)
	if c.Enabled() {
		t.Fatal("compressor at 100% enabled")
	}
}

func TestAmplifier(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		amp  Amplifier
		in   int16
		want int16
	}{
		{"half", Amplifier{Gain: 0.5}, 1000, 500},
		{"clip", Amplifier{Gain: 2}, 30000, 32767},
		{"clip negative", Amplifier{Gain: 2}, -30000, -32768},
		{"mute", Amplifier{Gain: 1, Mute: true}, 1000, 0},
		{"zero gain", Amplifier{Gain: 0}, 1000, 0},
	}
	for _, tc := range cases {
		buf := pcm.S16ToBytes(nil, []int16{tc.in})
		tc.amp.Process(buf)
		if got := pcm.Sample(buf, 0); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
	if NewAmplifier().Active() {
		t.Fatal("unity amplifier reports active")
	}
}
