package driver

import (
	"testing"

	"audiosync/engine/pcm"
)

func TestCapabilityString(t *testing.T) {
	t.Parallel()
	c := CapMono | CapStereo | Cap16Bits
	if got, want := c.String(), "mono|stereo|16bit"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := Capability(0).String(); got != "none" {
		t.Fatalf("got %q, want none", got)
	}
}

func TestModeCapability(t *testing.T) {
	t.Parallel()
	modes := []pcm.Mode{pcm.ModeMono, pcm.ModeStereo, pcm.Mode4Channel, pcm.Mode4_1Channel,
		pcm.Mode5Channel, pcm.Mode5_1Channel, pcm.ModeA52, pcm.ModeAC5}
	seen := Capability(0)
	for _, m := range modes {
		c := ModeCapability(m)
		if c == 0 || seen.Has(c) {
			t.Fatalf("mode %v maps to %v", m, c)
		}
		seen |= c
	}
	if !(CapA52 | Cap16Bits).Has(BitsCapability(16)) {
		t.Fatal("16-bit capability missing")
	}
}
