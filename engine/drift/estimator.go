// Package drift estimates the ratio between the rate a sink consumes samples
// and the rate the master clock advances, so the converter can stretch or
// shrink output by a small factor instead of dropping or padding.
package drift

import "fmt"

type State int

const (
	Invalid State = iota
	Collecting
	ReducingGap
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Collecting:
		return "collecting"
	case ReducingGap:
		return "reducing-gap"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const historyLen = 8

// Config tunes the estimator. Zero fields take the defaults.
type Config struct {
	// Window is the number of samples after the window start used for one
	// slope measurement.
	Window int
	// ReduceThreshold is the average |gap| (pts) that triggers gap reduction.
	ReduceThreshold int64
	// ReduceExit is the average |gap| below which reduction stops.
	ReduceExit int64
	// MaxGap invalidates the estimate; the loop falls back to drop/fill.
	MaxGap    int64
	MinFactor float64
	MaxFactor float64
	// ReduceRate is the factor offset applied while reducing a gap.
	ReduceRate float64
}

func DefaultConfig() Config {
	return Config{
		Window:          50,
		ReduceThreshold: 1000,
		ReduceExit:      200,
		MaxGap:          15000,
		MinFactor:       0.99,
		MaxFactor:       1.01,
		ReduceRate:      0.005,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.ReduceThreshold <= 0 {
		c.ReduceThreshold = d.ReduceThreshold
	}
	if c.ReduceExit <= 0 {
		c.ReduceExit = d.ReduceExit
	}
	if c.MaxGap <= 0 {
		c.MaxGap = d.MaxGap
	}
	if c.MinFactor <= 0 {
		c.MinFactor = d.MinFactor
	}
	if c.MaxFactor <= 0 {
		c.MaxFactor = d.MaxFactor
	}
	if c.ReduceRate <= 0 {
		c.ReduceRate = d.ReduceRate
	}
	return c
}

// Estimator is not safe for concurrent use; it belongs to the output loop.
type Estimator struct {
	cfg Config

	state      State
	factor     float64
	calibrated bool

	count     int
	startGap  int64
	startVPTS int64

	hist  [historyLen]int64
	nHist int
	pos   int
}

func New(cfg Config) *Estimator {
	e := &Estimator{cfg: cfg.withDefaults()}
	e.Reset()
	return e
}

// Reset forces the Invalid state and forgets the measured factor.
func (e *Estimator) Reset() {
	e.state = Invalid
	e.factor = 1.0
	e.calibrated = false
	e.count = 0
	e.nHist = 0
	e.pos = 0
}

func (e *Estimator) State() State { return e.state }

// Factor is the last factor returned by Update.
func (e *Estimator) Factor() float64 {
	switch e.state {
	case Invalid:
		return 1.0
	case ReducingGap:
		return e.reduceFactor()
	}
	return e.factor
}

// Update feeds one (gap, vpts) observation and returns the output rate
// factor for the current buffer.
func (e *Estimator) Update(gap, vpts int64) float64 {
	if abs(gap) > e.cfg.MaxGap {
		e.Reset()
		return 1.0
	}
	e.push(gap)

	switch e.state {
	case Invalid:
		e.state = Collecting
		e.restartWindow(gap, vpts)
		return 1.0

	case Collecting:
		if e.nHist == historyLen && abs(e.average()) > e.cfg.ReduceThreshold {
			e.state = ReducingGap
			return e.reduceFactor()
		}
		e.count++
		if e.count >= e.cfg.Window {
			if dv := vpts - e.startVPTS; dv > 0 {
				base := 1.0
				if e.calibrated {
					base = e.factor
				}
				f := base + float64(gap-e.startGap)/float64(dv)
				e.factor = min(max(f, e.cfg.MinFactor), e.cfg.MaxFactor)
				e.calibrated = true
			}
			e.restartWindow(gap, vpts)
		}
		return e.factor

	case ReducingGap:
		if abs(e.average()) < e.cfg.ReduceExit {
			e.Reset()
			return 1.0
		}
		return e.reduceFactor()
	}
	return 1.0
}

func (e *Estimator) restartWindow(gap, vpts int64) {
	e.count = 0
	e.startGap = gap
	e.startVPTS = vpts
}

func (e *Estimator) reduceFactor() float64 {
	if e.average() > 0 {
		return 1.0 + e.cfg.ReduceRate
	}
	return 1.0 - e.cfg.ReduceRate
}

func (e *Estimator) push(gap int64) {
	e.hist[e.pos] = gap
	e.pos = (e.pos + 1) % historyLen
	if e.nHist < historyLen {
		e.nHist++
	}
}

func (e *Estimator) average() int64 {
	if e.nHist == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < e.nHist; i++ {
		sum += e.hist[i]
	}
	return sum / int64(e.nHist)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
