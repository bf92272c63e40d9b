package pcm

import (
	"fmt"
	"time"
)

// Mode is a channel layout, or an encoded passthrough carrier.
type Mode int

const (
	ModeMono Mode = iota + 1
	ModeStereo
	Mode4Channel
	Mode4_1Channel
	Mode5Channel
	Mode5_1Channel
	// ModeA52 carries IEC 61937 A/52 bursts in 2x16-bit frames.
	ModeA52
	// ModeAC5 carries IEC 61937 DTS bursts in 2x16-bit frames.
	ModeAC5
)

func (m Mode) Channels() int {
	switch m {
	case ModeMono:
		return 1
	case ModeStereo, ModeA52, ModeAC5:
		return 2
	case Mode4Channel:
		return 4
	case Mode4_1Channel, Mode5Channel:
		return 5
	case Mode5_1Channel:
		return 6
	}
	return 0
}

// Passthrough reports whether the mode carries an encoded bitstream that must
// never be filtered or resampled.
func (m Mode) Passthrough() bool {
	return m == ModeA52 || m == ModeAC5
}

func (m Mode) String() string {
	switch m {
	case ModeMono:
		return "mono"
	case ModeStereo:
		return "stereo"
	case Mode4Channel:
		return "4ch"
	case Mode4_1Channel:
		return "4.1ch"
	case Mode5Channel:
		return "5ch"
	case Mode5_1Channel:
		return "5.1ch"
	case ModeA52:
		return "a52"
	case ModeAC5:
		return "ac5"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Format describes interleaved PCM framing. Bits is 8 (unsigned) or 16
// (signed little-endian).
type Format struct {
	Bits int
	Rate int
	Mode Mode
}

func (f Format) Channels() int { return f.Mode.Channels() }

func (f Format) BytesPerFrame() int {
	return f.Bits / 8 * f.Mode.Channels()
}

// Frames returns the number of frames covering d at the format's rate.
func (f Format) Frames(d time.Duration) int {
	return int(float64(f.Rate) * d.Seconds())
}

func (f Format) Validate() error {
	if f.Rate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.Rate)
	}
	if f.Bits != 8 && f.Bits != 16 {
		return fmt.Errorf("unsupported bits per sample %d", f.Bits)
	}
	if f.Mode.Channels() == 0 {
		return fmt.Errorf("unsupported mode %v", f.Mode)
	}
	if f.Mode.Passthrough() && f.Bits != 16 {
		return fmt.Errorf("passthrough mode %v requires 16 bits", f.Mode)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%v", f.Rate, f.Bits, f.Mode)
}
