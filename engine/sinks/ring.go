package sinks

import (
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
)

// ringBridge couples the push-style output loop with pull-style audio APIs.
// The loop blocks in write while the ring is full; the audio callback never
// blocks and pads with silence on underrun.
type ringBridge struct {
	ring       *ringbuffer.RingBuffer
	size       int
	closed     atomic.Bool
	paused     atomic.Bool
	underflows atomic.Uint64
	sleep      func(time.Duration)
}

func newRingBridge(size int) *ringBridge {
	return &ringBridge{ring: ringbuffer.New(size), size: size, sleep: time.Sleep}
}

// write copies p into the ring, waiting for space as needed. It gives up
// silently once the bridge is closed.
func (r *ringBridge) write(p []byte) {
	for len(p) > 0 && !r.closed.Load() {
		free := r.ring.Free()
		if free == 0 {
			r.sleep(time.Millisecond)
			continue
		}
		n := min(free, len(p))
		w, _ := r.ring.Write(p[:n])
		p = p[w:]
	}
}

// Read fills p from the ring, padding with silence. It always reports a full
// read so the player keeps running through underruns.
func (r *ringBridge) Read(p []byte) (int, error) {
	if r.paused.Load() {
		clear(p)
		return len(p), nil
	}
	n, _ := r.ring.TryRead(p)
	if n < len(p) {
		clear(p[n:])
		if !r.closed.Load() {
			r.underflows.Add(1)
		}
	}
	return len(p), nil
}

// buffered is the number of bytes queued in the ring.
func (r *ringBridge) buffered() int { return r.ring.Length() }

func (r *ringBridge) reset() { r.ring.Reset() }
