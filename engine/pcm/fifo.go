package pcm

import (
	"fmt"
	"sync"
)

// FIFO is a blocking queue of buffers linked through the buffers themselves.
// A buffer may be a member of at most one FIFO.
type FIFO struct {
	name string

	mu       sync.Mutex
	notEmpty *sync.Cond
	empty    *sync.Cond
	first    *Buffer
	last     *Buffer
	n        int
}

func NewFIFO(name string) *FIFO {
	f := &FIFO{name: name}
	f.notEmpty = sync.NewCond(&f.mu)
	f.empty = sync.NewCond(&f.mu)
	return f
}

func (f *FIFO) Name() string { return f.name }

// Append inserts b at the tail and wakes one waiter.
func (f *FIFO) Append(b *Buffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.queued {
		panic(fmt.Sprintf("pcm: buffer %d appended to %s while still queued", b.id, f.name))
	}
	b.queued = true
	b.next = nil
	if f.last == nil {
		f.first = b
	} else {
		f.last.next = b
	}
	f.last = b
	f.n++
	f.notEmpty.Signal()
}

// Remove detaches the head, blocking until one is available.
func (f *FIFO) Remove() *Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.first == nil {
		f.notEmpty.Wait()
	}
	return f.detachLocked()
}

// TryRemove detaches the head or returns nil when the queue is empty.
func (f *FIFO) TryRemove() *Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.first == nil {
		return nil
	}
	return f.detachLocked()
}

func (f *FIFO) detachLocked() *Buffer {
	b := f.first
	f.first = b.next
	if f.first == nil {
		f.last = nil
	}
	b.next = nil
	b.queued = false
	f.n--
	if f.n == 0 {
		f.empty.Broadcast()
	}
	return b
}

// WaitNotEmpty blocks until the queue holds a buffer without taking it. It is
// meant for a single consumer that must prepare before detaching the head.
func (f *FIFO) WaitNotEmpty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.first == nil {
		f.notEmpty.Wait()
	}
}

// WaitEmpty blocks until the queue has been drained.
func (f *FIFO) WaitEmpty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.n > 0 {
		f.empty.Wait()
	}
}

func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}
