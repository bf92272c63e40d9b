package sinks

import (
	"sync"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

// MockWrite records one Write call.
type MockWrite struct {
	Frames int
	Format pcm.Format
	Data   []byte
}

// MockDriver records everything the loop does to it. The delay it reports is
// either fixed or, with TrackDelay, grows with every write so gap fills
// become visible to the next timing decision.
type MockDriver struct {
	mu         sync.Mutex
	caps       driver.Capability
	rate       int
	tolerance  int64
	delay      int
	trackDelay bool
	openErr    func(pcm.Format) error
	writeErr   error

	format   pcm.Format
	opened   bool
	opens    []pcm.Format
	writes   []MockWrite
	frames   int
	commands []driver.Command
	props    map[driver.Property]int
	closes   int
	exits    int
}

// NewMockDriver returns a mock with the given capabilities. Zero selects
// every PCM layout plus a mixer.
func NewMockDriver(caps driver.Capability) *MockDriver {
	if caps == 0 {
		caps = allPCMCaps | driver.CapMixerVol | driver.CapPCMVol | driver.CapMuteVol
	}
	return &MockDriver{
		caps:      caps,
		tolerance: DefaultGapTolerance,
		props:     map[driver.Property]int{driver.PropMixerVolume: 100, driver.PropPCMVolume: 100},
	}
}

// SetRate forces the rate Open reports. Zero accepts the requested rate.
func (m *MockDriver) SetRate(rate int) {
	m.mu.Lock()
	m.rate = rate
	m.mu.Unlock()
}

func (m *MockDriver) SetDelay(frames int) {
	m.mu.Lock()
	m.delay = frames
	m.mu.Unlock()
}

// TrackDelay makes each Write add its frames to the reported delay.
func (m *MockDriver) TrackDelay(on bool) {
	m.mu.Lock()
	m.trackDelay = on
	m.mu.Unlock()
}

func (m *MockDriver) SetGapTolerance(pts int64) {
	m.mu.Lock()
	m.tolerance = pts
	m.mu.Unlock()
}

// RejectOpen installs a check run by Open; a non-nil error refuses the format.
func (m *MockDriver) RejectOpen(fn func(pcm.Format) error) {
	m.mu.Lock()
	m.openErr = fn
	m.mu.Unlock()
}

func (m *MockDriver) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *MockDriver) Name() string { return "mock" }

func (m *MockDriver) Capabilities() driver.Capability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

func (m *MockDriver) Open(f pcm.Format) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens = append(m.opens, f)
	if m.openErr != nil {
		if err := m.openErr(f); err != nil {
			return 0, err
		}
	}
	m.format = f
	m.opened = true
	if m.rate > 0 {
		return m.rate, nil
	}
	return f.Rate, nil
}

func (m *MockDriver) Write(samples []byte, frames int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return driver.ErrNotOpen
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, MockWrite{Frames: frames, Format: m.format, Data: append([]byte(nil), samples...)})
	m.frames += frames
	if m.trackDelay {
		m.delay += frames
	}
	return nil
}

func (m *MockDriver) Delay() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delay
}

func (m *MockDriver) GapTolerance() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tolerance
}

func (m *MockDriver) Close() {
	m.mu.Lock()
	m.opened = false
	m.closes++
	m.mu.Unlock()
}

func (m *MockDriver) Exit() {
	m.mu.Lock()
	m.opened = false
	m.exits++
	m.mu.Unlock()
}

func (m *MockDriver) Property(p driver.Property) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.props[p]
	if !ok && p != driver.PropMute {
		return 0, driver.ErrPropertyUnsupported
	}
	return v, nil
}

func (m *MockDriver) SetProperty(p driver.Property, v int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[p] = v
	return v, nil
}

func (m *MockDriver) Control(c driver.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, c)
	if c == driver.CmdFlush && m.trackDelay {
		m.delay = 0
	}
	return nil
}

func (m *MockDriver) Writes() []MockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockWrite(nil), m.writes...)
}

// FramesWritten is the sum of frames over all writes.
func (m *MockDriver) FramesWritten() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

func (m *MockDriver) Commands() []driver.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driver.Command(nil), m.commands...)
}

// Opens lists every format Open was called with, accepted or not.
func (m *MockDriver) Opens() []pcm.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pcm.Format(nil), m.opens...)
}

func (m *MockDriver) Format() pcm.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format
}

func (m *MockDriver) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

func (m *MockDriver) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *MockDriver) Exits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exits
}
