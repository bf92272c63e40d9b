package metronom

import (
	"log/slog"
	"sync"
)

// SampleNum is the frame count audio steps are expressed against: a step is
// the pts duration of SampleNum frames.
const SampleNum = 32768

// DefaultPrebuffer is how far ahead of the clock the first buffer of a
// stream without timestamps is scheduled.
const DefaultPrebuffer = 12000

// AudioStep returns the step for rate frames per second.
func AudioStep(rate int) int64 {
	if rate <= 0 {
		return 0
	}
	return int64(PTSPerSecond) * SampleNum / int64(rate)
}

// Metronom converts one stream's pts into vpts. The offset between the two
// is corrected by the output loop when the sink drifts away from the clock.
type Metronom struct {
	clock Clock
	log   *slog.Logger

	mu        sync.Mutex
	offset    int64
	step      int64
	nextVPTS  int64
	remainder int64
	started   bool
	prebuffer int64
}

func New(clock Clock, logger *slog.Logger) *Metronom {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metronom{clock: clock, log: logger, prebuffer: DefaultPrebuffer}
}

// SetPrebuffer changes the scheduling lead of untimed streams.
func (m *Metronom) SetPrebuffer(pts int64) {
	m.mu.Lock()
	m.prebuffer = pts
	m.mu.Unlock()
}

// SetAudioRate sets the pts duration of SampleNum frames.
func (m *Metronom) SetAudioRate(step int64) {
	m.mu.Lock()
	m.step = step
	m.remainder = 0
	m.mu.Unlock()
}

func (m *Metronom) AudioRate() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// GotAudioSamples returns the vpts of a buffer of frames with the given pts.
// A pts of 0 continues from the end of the previous buffer.
func (m *Metronom) GotAudioSamples(pts int64, frames int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var vpts int64
	switch {
	case pts != 0:
		vpts = pts + m.offset
		m.remainder = 0
	case m.started:
		vpts = m.nextVPTS
	default:
		vpts = m.clock.CurrentTime() + m.prebuffer
	}
	m.started = true

	acc := int64(frames)*m.step + m.remainder
	m.nextVPTS = vpts + acc/SampleNum
	m.remainder = acc % SampleNum
	return vpts
}

// AdjustVPTSOffset shifts future vpts by delta, including interpolated ones.
func (m *Metronom) AdjustVPTSOffset(delta int64) {
	m.mu.Lock()
	m.offset += delta
	m.nextVPTS += delta
	off := m.offset
	m.mu.Unlock()
	m.log.Debug("vpts offset adjusted", "delta", delta, "offset", off)
}

func (m *Metronom) VPTSOffset() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

// SetVPTSOffset replaces the offset, e.g. on a stream discontinuity.
func (m *Metronom) SetVPTSOffset(offset int64) {
	m.mu.Lock()
	m.nextVPTS += offset - m.offset
	m.offset = offset
	m.mu.Unlock()
}
