// Package driver defines the contract between the output loop and a sink
// backend.
package driver

import (
	"errors"
	"fmt"
	"strings"

	"audiosync/engine/pcm"
)

// Capability is a bit set of formats and features a sink supports.
type Capability uint32

const (
	CapMono Capability = 1 << iota
	CapStereo
	Cap4Channel
	Cap4_1Channel
	Cap5Channel
	Cap5_1Channel
	CapA52
	CapAC5
	Cap8Bits
	Cap16Bits
	// CapMixerVol means the sink has its own volume control.
	CapMixerVol
	CapPCMVol
	CapMuteVol
)

var capNames = []string{
	"mono", "stereo", "4ch", "4.1ch", "5ch", "5.1ch", "a52", "ac5",
	"8bit", "16bit", "mixer-vol", "pcm-vol", "mute",
}

func (c Capability) Has(o Capability) bool { return c&o == o }

func (c Capability) String() string {
	var parts []string
	for i, n := range capNames {
		if c&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ModeCapability maps a channel mode to the capability that enables it.
func ModeCapability(m pcm.Mode) Capability {
	switch m {
	case pcm.ModeMono:
		return CapMono
	case pcm.ModeStereo:
		return CapStereo
	case pcm.Mode4Channel:
		return Cap4Channel
	case pcm.Mode4_1Channel:
		return Cap4_1Channel
	case pcm.Mode5Channel:
		return Cap5Channel
	case pcm.Mode5_1Channel:
		return Cap5_1Channel
	case pcm.ModeA52:
		return CapA52
	case pcm.ModeAC5:
		return CapAC5
	}
	return 0
}

func BitsCapability(bits int) Capability {
	switch bits {
	case 8:
		return Cap8Bits
	case 16:
		return Cap16Bits
	}
	return 0
}

// Property identifies a sink-side setting.
type Property int

const (
	PropMixerVolume Property = iota
	PropPCMVolume
	PropMute
)

func (p Property) String() string {
	switch p {
	case PropMixerVolume:
		return "mixer-volume"
	case PropPCMVolume:
		return "pcm-volume"
	case PropMute:
		return "mute"
	}
	return fmt.Sprintf("property(%d)", int(p))
}

// Command is an out-of-band request to the sink.
type Command int

const (
	CmdPause Command = iota + 1
	CmdResume
	// CmdFlush discards whatever the sink has buffered but not played.
	CmdFlush
)

func (c Command) String() string {
	switch c {
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdFlush:
		return "flush"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

var (
	ErrNotOpen             = errors.New("driver: not open")
	ErrUnsupportedFormat   = errors.New("driver: unsupported format")
	ErrPropertyUnsupported = errors.New("driver: property not supported")
	ErrCommandUnsupported  = errors.New("driver: command not supported")
)

// Driver is a push sink. All methods are called from the output loop or
// with the port's driver lock held, never concurrently.
type Driver interface {
	Name() string
	Capabilities() Capability
	// Open configures the sink for f and returns the rate it actually runs
	// at, which may differ from f.Rate.
	Open(f pcm.Format) (rate int, err error)
	// Write queues frames of the opened format.
	Write(samples []byte, frames int) error
	// Delay returns the number of frames written but not yet heard. A
	// negative value means the sink has not been primed.
	Delay() int
	// GapTolerance is the timing error in pts the sink can absorb before
	// the loop corrects the clock.
	GapTolerance() int64
	Close()
	// Exit releases the sink for good.
	Exit()
	Property(p Property) (int, error)
	SetProperty(p Property, v int) (int, error)
	Control(c Command) error
}
