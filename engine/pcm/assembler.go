package pcm

import "sync"

// FrameAssembler regroups a byte stream into fixed-size packets, keeping the
// tail until enough bytes arrive.
type FrameAssembler struct {
	frameSize int
	buffer    []byte
	mu        sync.Mutex
}

func NewFrameAssembler(frameSize int) *FrameAssembler {
	if frameSize < 1 {
		frameSize = 1
	}
	return &FrameAssembler{
		frameSize: frameSize,
	}
}

// Push appends data and returns every complete packet now available.
func (a *FrameAssembler) Push(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buffer = append(a.buffer, data...)
	var frames [][]byte
	for len(a.buffer) >= a.frameSize {
		frame := make([]byte, a.frameSize)
		copy(frame, a.buffer[:a.frameSize])
		frames = append(frames, frame)
		a.buffer = a.buffer[a.frameSize:]
	}
	return frames
}

// Pending is the number of bytes held back.
func (a *FrameAssembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// Reset drops the held-back tail.
func (a *FrameAssembler) Reset() {
	a.mu.Lock()
	a.buffer = a.buffer[:0]
	a.mu.Unlock()
}
