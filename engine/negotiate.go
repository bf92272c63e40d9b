package engine

import (
	"fmt"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

// outputFormat picks the sink-side format for in. Bit depth falls back
// between 16 and 8 bits, mono and stereo fall back to each other. Other
// layouts and passthrough need the exact capability.
func outputFormat(in pcm.Format, caps driver.Capability) (pcm.Format, error) {
	out := in
	if in.Mode.Passthrough() {
		if !caps.Has(driver.ModeCapability(in.Mode)) {
			return pcm.Format{}, fmt.Errorf("%w: no %v passthrough", driver.ErrUnsupportedFormat, in.Mode)
		}
		return out, nil
	}

	if !caps.Has(driver.BitsCapability(in.Bits)) {
		switch {
		case in.Bits == 16 && caps.Has(driver.Cap8Bits):
			out.Bits = 8
		case in.Bits == 8 && caps.Has(driver.Cap16Bits):
			out.Bits = 16
		default:
			return pcm.Format{}, fmt.Errorf("%w: no %d-bit output", driver.ErrUnsupportedFormat, in.Bits)
		}
	}

	if !caps.Has(driver.ModeCapability(in.Mode)) {
		switch {
		case in.Mode == pcm.ModeMono && caps.Has(driver.CapStereo):
			out.Mode = pcm.ModeStereo
		case in.Mode == pcm.ModeStereo && caps.Has(driver.CapMono):
			out.Mode = pcm.ModeMono
		default:
			return pcm.Format{}, fmt.Errorf("%w: no %v output", driver.ErrUnsupportedFormat, in.Mode)
		}
	}
	return out, nil
}

// negotiate opens the sink for in. The driver lock must be held.
func (p *Port) negotiate(in pcm.Format) (pcm.Format, error) {
	out, err := outputFormat(in, p.drv.Capabilities())
	if err != nil {
		return pcm.Format{}, err
	}
	rate, err := p.drv.Open(out)
	if err != nil {
		return pcm.Format{}, err
	}
	if rate <= 0 {
		p.drv.Close()
		return pcm.Format{}, errZeroRate
	}
	if rate != out.Rate {
		p.log.Debug("audio out: sink runs at another rate", "requested", out.Rate, "actual", rate)
	}
	out.Rate = rate
	return out, nil
}
