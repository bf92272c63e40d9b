package pcm

import "testing"

func TestU8RoundTrip(t *testing.T) {
	t.Parallel()
	src := []byte{0, 1, 127, 128, 129, 255}
	wide := make([]byte, len(src)*2)
	if n := U8ToS16(wide, src); n != len(wide) {
		t.Fatalf("U8ToS16 wrote %d bytes, want %d", n, len(wide))
	}
	if got := Sample(wide, 0); got != -32768 {
		t.Fatalf("u8 0 -> %d, want -32768", got)
	}
	if got := Sample(wide, 3); got != 0 {
		t.Fatalf("u8 128 -> %d, want 0", got)
	}
	back := make([]byte, len(src))
	S16ToU8(back, wide)
	for i := range src {
		if back[i] != src[i] {
			t.Fatalf("sample %d: got %d, want %d", i, back[i], src[i])
		}
	}
}

func TestMonoStereo(t *testing.T) {
	t.Parallel()
	mono := S16ToBytes(nil, []int16{100, -200, 300})
	stereo := make([]byte, len(mono)*2)
	if n := MonoToStereo(stereo, mono); n != len(stereo) {
		t.Fatalf("MonoToStereo wrote %d, want %d", n, len(stereo))
	}
	want := []int16{100, 100, -200, -200, 300, 300}
	got := BytesToS16(nil, stereo)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stereo[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	stereo = S16ToBytes(nil, []int16{100, 300, -100, -300})
	out := make([]byte, 4)
	StereoToMono(out, stereo)
	if a, b := Sample(out, 0), Sample(out, 1); a != 200 || b != -200 {
		t.Fatalf("StereoToMono = %d,%d want 200,-200", a, b)
	}
}

func TestSilence(t *testing.T) {
	t.Parallel()
	b := []byte{1, 2, 3}
	Silence(b, Format{Bits: 8, Rate: 8000, Mode: ModeMono})
	for i, v := range b {
		if v != 0x80 {
			t.Fatalf("u8 silence[%d] = %#x", i, v)
		}
	}
	Silence(b, Format{Bits: 16, Rate: 8000, Mode: ModeMono})
	for i, v := range b {
		if v != 0 {
			t.Fatalf("s16 silence[%d] = %#x", i, v)
		}
	}
}

func TestFormatValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		f  Format
		ok bool
	}{
		{Format{Bits: 16, Rate: 44100, Mode: ModeStereo}, true},
		{Format{Bits: 8, Rate: 8000, Mode: ModeMono}, true},
		{Format{Bits: 16, Rate: 48000, Mode: ModeA52}, true},
		{Format{Bits: 8, Rate: 48000, Mode: ModeA52}, false},
		{Format{Bits: 24, Rate: 48000, Mode: ModeStereo}, false},
		{Format{Bits: 16, Rate: 0, Mode: ModeStereo}, false},
		{Format{Bits: 16, Rate: 8000, Mode: 0}, false},
	}
	for _, tc := range cases {
		err := tc.f.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%v: Validate() = %v, want ok=%v", tc.f, err, tc.ok)
		}
	}
	if got := (Format{Bits: 16, Rate: 48000, Mode: Mode5_1Channel}).BytesPerFrame(); got != 12 {
		t.Fatalf("5.1 s16 BytesPerFrame = %d, want 12", got)
	}
}
