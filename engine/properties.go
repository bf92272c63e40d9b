package engine

import (
	"fmt"
	"math"

	"audiosync/engine/driver"
	"audiosync/engine/filter"
)

const (
	maxVolume     = 100
	maxAmp        = 200
	maxCompressor = 1000
)

// Property identifies a port setting.
type Property int

const (
	PropMixerVolume Property = iota
	PropPCMVolume
	PropMute
	// PropAmp is the software gain in percent; 100 is unity.
	PropAmp
	PropAmpMute
	// PropCompressor is the compressor ceiling in percent; 100 or less
	// disables it.
	PropCompressor
	PropResampleSync
	// PropGapTolerance overrides the sink's tolerance in pts; 0 restores it.
	PropGapTolerance
	PropPauseMode
	PropBufsInFIFO
	PropNumStreams
	// PropEqualizer0 is the 31 Hz band. Bands follow in ascending order.
	PropEqualizer0
	PropEqualizer1
	PropEqualizer2
	PropEqualizer3
	PropEqualizer4
	PropEqualizer5
	PropEqualizer6
	PropEqualizer7
	PropEqualizer8
	PropEqualizer9
)

var propNames = map[Property]string{
	PropMixerVolume:  "mixer_volume",
	PropPCMVolume:    "pcm_volume",
	PropMute:         "mute",
	PropAmp:          "amp",
	PropAmpMute:      "amp_mute",
	PropCompressor:   "compressor",
	PropResampleSync: "resample_sync",
	PropGapTolerance: "gap_tolerance",
	PropPauseMode:    "pause_mode",
	PropBufsInFIFO:   "bufs_in_fifo",
	PropNumStreams:   "num_streams",
}

// PropEqualizer returns the property of equalizer band b.
func PropEqualizer(b int) Property { return PropEqualizer0 + Property(b) }

func (p Property) band() (int, bool) {
	b := int(p - PropEqualizer0)
	return b, b >= 0 && b < filter.NumBands
}

func (p Property) String() string {
	if n, ok := propNames[p]; ok {
		return n
	}
	if b, ok := p.band(); ok {
		return fmt.Sprintf("eq%d", b)
	}
	return fmt.Sprintf("property(%d)", int(p))
}

// mixerProperty maps a volume property to the sink property and the
// capability that makes the sink handle it.
func mixerProperty(p Property) (driver.Property, driver.Capability, bool) {
	switch p {
	case PropMixerVolume:
		return driver.PropMixerVolume, driver.CapMixerVol, true
	case PropPCMVolume:
		return driver.PropPCMVolume, driver.CapPCMVol, true
	case PropMute:
		return driver.PropMute, driver.CapMuteVol, true
	}
	return 0, 0, false
}

// Property reads a setting. Volume and mute come from the sink when it has a
// mixer and from the software gain stage otherwise.
func (p *Port) Property(prop Property) (int, error) {
	if dp, dc, ok := mixerProperty(prop); ok {
		p.driverMu.Lock()
		hw := p.drv.Capabilities().Has(dc)
		var (
			v   int
			err error
		)
		if hw {
			v, err = p.drv.Property(dp)
		}
		p.driverMu.Unlock()
		if hw {
			if err != nil {
				return 0, fmt.Errorf("audio out: %v: %w", prop, err)
			}
			return v, nil
		}
		p.gainMu.Lock()
		defer p.gainMu.Unlock()
		if prop == PropMute {
			return boolInt(p.softMute), nil
		}
		return p.softVolume, nil
	}

	switch prop {
	case PropAmp:
		p.gainMu.Lock()
		defer p.gainMu.Unlock()
		return p.amp, nil
	case PropAmpMute:
		p.gainMu.Lock()
		defer p.gainMu.Unlock()
		return boolInt(p.ampMute), nil
	case PropCompressor:
		return p.conv.Compressor(), nil
	case PropResampleSync:
		return boolInt(p.resampleSync.Load()), nil
	case PropGapTolerance:
		return int(p.tolerance()), nil
	case PropPauseMode:
		return int(p.pauseMode.Load()), nil
	case PropBufsInFIFO:
		return p.out.Len(), nil
	case PropNumStreams:
		return p.streams.len(), nil
	}
	if b, ok := prop.band(); ok {
		return int(math.Round(p.conv.Equalizer(b))), nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownProperty, prop)
}

// SetProperty changes a setting and returns the value in effect.
func (p *Port) SetProperty(prop Property, v int) (int, error) {
	if dp, dc, ok := mixerProperty(prop); ok {
		if prop == PropMute {
			v = boolInt(v != 0)
		} else if v < 0 || v > maxVolume {
			return 0, rangeError(prop, v, 0, maxVolume)
		}
		p.driverMu.Lock()
		hw := p.drv.Capabilities().Has(dc)
		var err error
		if hw {
			v, err = p.drv.SetProperty(dp, v)
		}
		p.driverMu.Unlock()
		if hw {
			if err != nil {
				return 0, fmt.Errorf("audio out: %v: %w", prop, err)
			}
			return v, nil
		}
		p.gainMu.Lock()
		if prop == PropMute {
			p.softMute = v != 0
		} else {
			p.softVolume = v
		}
		p.gainMu.Unlock()
		p.applyGain()
		return v, nil
	}

	switch prop {
	case PropAmp:
		if v < 0 || v > maxAmp {
			return 0, rangeError(prop, v, 0, maxAmp)
		}
		p.gainMu.Lock()
		p.amp = v
		p.gainMu.Unlock()
		p.applyGain()
		return v, nil
	case PropAmpMute:
		p.gainMu.Lock()
		p.ampMute = v != 0
		p.gainMu.Unlock()
		p.applyGain()
		return boolInt(v != 0), nil
	case PropCompressor:
		if v < 0 || v > maxCompressor {
			return 0, rangeError(prop, v, 0, maxCompressor)
		}
		p.conv.SetCompressor(v)
		return p.conv.Compressor(), nil
	case PropResampleSync:
		p.resampleSync.Store(v != 0)
		return boolInt(v != 0), nil
	case PropGapTolerance:
		if v < 0 {
			return 0, rangeError(prop, v, 0, math.MaxInt32)
		}
		p.gapTolerance.Store(int64(v))
		return v, nil
	case PropPauseMode:
		if v < int(PauseNone) || v > int(PauseTrick) {
			return 0, rangeError(prop, v, int(PauseNone), int(PauseTrick))
		}
		p.pauseMode.Store(int32(v))
		return v, nil
	case PropBufsInFIFO, PropNumStreams:
		return 0, fmt.Errorf("%w: %v", ErrReadOnly, prop)
	}
	if b, ok := prop.band(); ok {
		if v < -filter.MaxGainDB || v > filter.MaxGainDB {
			return 0, rangeError(prop, v, -filter.MaxGainDB, filter.MaxGainDB)
		}
		p.conv.SetEqualizer(b, float64(v))
		return v, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownProperty, prop)
}

// applyGain pushes amp, software volume and both mutes into the converter.
func (p *Port) applyGain() {
	p.gainMu.Lock()
	gain := p.amp * p.softVolume / maxVolume
	mute := p.ampMute || p.softMute
	p.gainMu.Unlock()
	p.conv.SetAmp(gain)
	p.conv.SetAmpMute(mute)
}

func rangeError(prop Property, v, lo, hi int) error {
	return fmt.Errorf("%w: %v = %d, want %d..%d", ErrOutOfRange, prop, v, lo, hi)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
