package pcm

import "fmt"

// ExtraInfo is producer-side position metadata carried along with a buffer.
type ExtraInfo struct {
	InputPos    int64
	InputTime   int64
	FrameNumber int64
}

// Buffer is a fixed-capacity block of interleaved samples. Buffers live in a
// Pool for the lifetime of the port and are owned by exactly one party at a
// time: a FIFO, a producer that acquired it, or the output loop.
type Buffer struct {
	Mem       []byte
	NumFrames int
	// VPTS is the presentation time of the first frame (90 kHz units).
	VPTS   int64
	Format Format
	// Stream identifies the producing stream. It is a relation only.
	Stream any
	Extra  ExtraInfo

	id     int
	next   *Buffer
	queued bool
}

func newBuffer(id, size int) *Buffer {
	return &Buffer{id: id, Mem: make([]byte, size)}
}

// ID is the buffer's index in its pool. Scratch buffers have negative IDs.
func (b *Buffer) ID() int { return b.id }

// Bytes returns the used portion of Mem.
func (b *Buffer) Bytes() []byte {
	return b.Mem[:b.NumFrames*b.Format.BytesPerFrame()]
}

// Capacity returns how many frames of f fit into the buffer.
func (b *Buffer) Capacity(f Format) int {
	bpf := f.BytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return len(b.Mem) / bpf
}

// Grow reallocates Mem so that it holds at least size bytes. Content is not
// preserved.
func (b *Buffer) Grow(size int) {
	if len(b.Mem) >= size {
		return
	}
	b.Mem = make([]byte, size)
}

// CheckCapacity panics when the frame count does not fit the buffer.
func (b *Buffer) CheckCapacity() {
	if need := b.NumFrames * b.Format.BytesPerFrame(); need > len(b.Mem) || b.NumFrames < 0 {
		panic(fmt.Sprintf("pcm: buffer %d holds %d frames (%d bytes) but has capacity %d", b.id, b.NumFrames, need, len(b.Mem)))
	}
}

func (b *Buffer) reset() {
	b.NumFrames = 0
	b.VPTS = 0
	b.Format = Format{}
	b.Stream = nil
	b.Extra = ExtraInfo{}
}
