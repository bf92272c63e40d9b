package engine

import (
	"errors"
	"testing"

	"audiosync/engine/driver"
	"audiosync/engine/filter"
	"audiosync/engine/metronom"
	"audiosync/engine/pcm"
	"audiosync/engine/sinks"
)

func TestHardwareMixerForwarded(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	p := newTestPort(t, m, clock, nil)

	if v, err := p.SetProperty(PropMixerVolume, 40); err != nil || v != 40 {
		t.Fatalf("SetProperty = %d, %v", v, err)
	}
	if v, _ := m.Property(driver.PropMixerVolume); v != 40 {
		t.Fatalf("sink volume = %d, want 40", v)
	}
	if v, err := p.Property(PropMixerVolume); err != nil || v != 40 {
		t.Fatalf("Property = %d, %v", v, err)
	}
	if _, err := p.SetProperty(PropPCMVolume, 101); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("volume 101: %v", err)
	}
}

func TestSoftwareVolume(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(driver.CapMono | driver.Cap16Bits)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", pcm.Format{Bits: 16, Rate: 8000, Mode: pcm.ModeMono})

	if _, err := p.SetProperty(PropMixerVolume, 40); err != nil {
		t.Fatal(err)
	}
	if v, _ := p.Property(PropMixerVolume); v != 40 {
		t.Fatalf("software volume = %d", v)
	}
	putSamples(p, s, []int16{1000, -1000, 1000, -1000}, testNow)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 1 })
	if v := pcm.Sample(m.Writes()[0].Data, 0); v != 400 {
		t.Fatalf("sample = %d, want 400", v)
	}

	p.SetProperty(PropMute, 1)
	if v, _ := p.Property(PropMute); v != 1 {
		t.Fatalf("mute = %d", v)
	}
	putSamples(p, s, []int16{1000, -1000}, testNow)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 2 })
	if v := pcm.Sample(m.Writes()[1].Data, 1); v != 0 {
		t.Fatalf("muted sample = %d", v)
	}
}

func TestAmpCombinesWithVolume(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(driver.CapMono | driver.Cap16Bits)
	p := newTestPort(t, m, clock, nil)
	s := openStream(t, p, clock, "a", pcm.Format{Bits: 16, Rate: 8000, Mode: pcm.ModeMono})

	p.SetProperty(PropAmp, 150)
	p.SetProperty(PropPCMVolume, 50)
	putSamples(p, s, []int16{1000}, testNow)
	waitFor(t, "play", func() bool { return p.Stats().PlayedBuffers == 1 })
	if v := pcm.Sample(m.Writes()[0].Data, 0); v != 750 {
		t.Fatalf("sample = %d, want 750", v)
	}
	if v, _ := p.Property(PropAmp); v != 150 {
		t.Fatalf("amp = %d", v)
	}
}

func TestPropertyErrors(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	p := newTestPort(t, sinks.NewMockDriver(0), clock, nil)

	tests := []struct {
		prop Property
		v    int
		want error
	}{
		{PropAmp, maxAmp + 1, ErrOutOfRange},
		{PropAmp, -1, ErrOutOfRange},
		{PropCompressor, maxCompressor + 1, ErrOutOfRange},
		{PropEqualizer0, 13, ErrOutOfRange},
		{PropEqualizer9, -13, ErrOutOfRange},
		{PropPauseMode, 3, ErrOutOfRange},
		{PropGapTolerance, -1, ErrOutOfRange},
		{PropBufsInFIFO, 1, ErrReadOnly},
		{PropNumStreams, 1, ErrReadOnly},
		{Property(999), 1, ErrUnknownProperty},
	}
	for _, tt := range tests {
		if _, err := p.SetProperty(tt.prop, tt.v); !errors.Is(err, tt.want) {
			t.Errorf("SetProperty(%v, %d) = %v, want %v", tt.prop, tt.v, err, tt.want)
		}
	}
	if _, err := p.Property(Property(999)); !errors.Is(err, ErrUnknownProperty) {
		t.Fatalf("Property(999) = %v", err)
	}
}

func TestPropertyRoundTrip(t *testing.T) {
	t.Parallel()
	clock := metronom.NewManualClock(testNow)
	m := sinks.NewMockDriver(0)
	m.SetGapTolerance(3000)
	p := newTestPort(t, m, clock, nil)
	openStream(t, p, clock, "a", stereo44)

	tests := []struct {
		prop Property
		v    int
	}{
		{PropAmpMute, 1},
		{PropCompressor, 300},
		{PropEqualizer(3), 6},
		{PropEqualizer9, -4},
		{PropResampleSync, 1},
		{PropGapTolerance, 2500},
		{PropPauseMode, int(PauseTrick)},
	}
	for _, tt := range tests {
		if v, err := p.SetProperty(tt.prop, tt.v); err != nil || v != tt.v {
			t.Fatalf("SetProperty(%v) = %d, %v", tt.prop, v, err)
		}
		if v, err := p.Property(tt.prop); err != nil || v != tt.v {
			t.Fatalf("Property(%v) = %d, %v; want %d", tt.prop, v, err, tt.v)
		}
	}

	p.SetProperty(PropGapTolerance, 0)
	if v, _ := p.Property(PropGapTolerance); v != 3000 {
		t.Fatalf("tolerance = %d, want the sink's 3000", v)
	}
	if v, _ := p.Property(PropNumStreams); v != 1 {
		t.Fatalf("streams = %d", v)
	}
	if v, _ := p.Property(PropBufsInFIFO); v != 0 {
		t.Fatalf("bufs = %d", v)
	}
}

func TestPropertyNames(t *testing.T) {
	t.Parallel()
	if PropEqualizer(4).String() != "eq4" || PropAmp.String() != "amp" {
		t.Fatalf("names %q %q", PropEqualizer(4), PropAmp)
	}
	if PropEqualizer(filter.NumBands).String() != "property(21)" {
		t.Fatalf("out of range band named %q", PropEqualizer(filter.NumBands))
	}
}
