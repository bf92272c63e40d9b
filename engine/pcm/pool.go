package pcm

const (
	// DefaultNumBuffers is the number of buffers circulating between the free
	// and out queues of a port.
	DefaultNumBuffers = 32
	// DefaultBufferSize is the byte capacity of each pooled buffer.
	DefaultBufferSize = 32768
)

// Pool owns every buffer of a port: the circulating ones, reachable through
// the free FIFO while unused, and two scratch buffers private to the output
// loop for format conversion.
type Pool struct {
	free    *FIFO
	size    int
	count   int
	scratch [2]*Buffer
}

// NewPool allocates count buffers of size bytes. Non-positive arguments fall
// back to the defaults.
func NewPool(count, size int) *Pool {
	if count <= 0 {
		count = DefaultNumBuffers
	}
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &Pool{free: NewFIFO("free"), size: size, count: count}
	for i := 0; i < count; i++ {
		p.free.Append(newBuffer(i, size))
	}
	p.scratch[0] = newBuffer(-1, size)
	p.scratch[1] = newBuffer(-2, size)
	return p
}

// Acquire blocks until a buffer is free and returns it with reset metadata.
// The sample content is stale.
func (p *Pool) Acquire() *Buffer {
	b := p.free.Remove()
	b.reset()
	return b
}

// TryAcquire returns a free buffer or nil without blocking.
func (p *Pool) TryAcquire() *Buffer {
	b := p.free.TryRemove()
	if b != nil {
		b.reset()
	}
	return b
}

// Release hands a buffer back to the free queue and clears its stream
// relation.
func (p *Pool) Release(b *Buffer) {
	if b == nil || b.id < 0 {
		return
	}
	b.Stream = nil
	p.free.Append(b)
}

// Free is the number of buffers currently on the free queue.
func (p *Pool) Free() int { return p.free.Len() }

// Count is the number of circulating buffers.
func (p *Pool) Count() int { return p.count }

// Scratch returns the two conversion buffers. They never enter a FIFO.
func (p *Pool) Scratch() (*Buffer, *Buffer) {
	return p.scratch[0], p.scratch[1]
}
