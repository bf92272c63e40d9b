package pcm

// Resampler performs 16.16 fixed-point linear interpolation on interleaved
// PCM16LE frames. The last input frame of each call is remembered so the
// next call interpolates across the buffer boundary without a discontinuity.
type Resampler struct {
	channels int
	last     []int16
	primed   bool
}

func NewResampler(channels int) *Resampler {
	if channels < 1 {
		channels = 1
	}
	return &Resampler{channels: channels, last: make([]int16, channels)}
}

func (r *Resampler) Channels() int { return r.channels }

// Reset forgets the remembered frame. The next call starts from its own first
// frame.
func (r *Resampler) Reset() {
	r.primed = false
	clear(r.last)
}

// Resample stretches inFrames frames of src into exactly outFrames frames of
// dst. Output frame o samples input position (o+1)*in/out - 1, where -1 is the
// frame remembered from the previous call. Returns bytes written.
func (r *Resampler) Resample(dst, src []byte, inFrames, outFrames int) int {
	ch := r.channels
	if outFrames <= 0 {
		return 0
	}
	if inFrames <= 0 {
		clear(dst[:outFrames*ch*2])
		return outFrames * ch * 2
	}
	if !r.primed {
		for c := 0; c < ch; c++ {
			r.last[c] = Sample(src, c)
		}
		r.primed = true
	}

	step := (int64(inFrames) << 16) / int64(outFrames)
	pos := step - 0x10000
	lastIdx := inFrames - 1
	for o := 0; o < outFrames; o++ {
		idx := int(pos >> 16)
		if idx > lastIdx {
			idx = lastIdx
		}
		i1 := idx + 1
		if i1 > lastIdx {
			i1 = lastIdx
		}
		t := pos & 0xffff
		for c := 0; c < ch; c++ {
			var a, b int64
			if idx < 0 {
				a = int64(r.last[c])
				b = int64(Sample(src, c))
			} else {
				a = int64(Sample(src, idx*ch+c))
				b = int64(Sample(src, i1*ch+c))
			}
			PutSample(dst, o*ch+c, int16((a*(0x10000-t)+b*t)>>16))
		}
		pos += step
	}
	for c := 0; c < ch; c++ {
		r.last[c] = Sample(src, lastIdx*ch+c)
	}
	return outFrames * ch * 2
}
