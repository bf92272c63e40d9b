package engine

import "sync"

type flushState int

const (
	flushIdle flushState = iota
	flushRequested
	flushReached
)

func (s flushState) String() string {
	switch s {
	case flushIdle:
		return "idle"
	case flushRequested:
		return "requested"
	case flushReached:
		return "reached"
	}
	return "unknown"
}

// flushBarrier hands a flush request from a caller to the output loop and
// the acknowledgement back: Idle -> Requested (caller) -> Reached (loop) ->
// Idle (caller).
type flushBarrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state flushState
}

func newFlushBarrier() *flushBarrier {
	f := &flushBarrier{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *flushBarrier) request() {
	f.mu.Lock()
	f.state = flushRequested
	f.mu.Unlock()
}

func (f *flushBarrier) requested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == flushRequested
}

// reach acknowledges a pending request. It is a no-op otherwise.
func (f *flushBarrier) reach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == flushRequested {
		f.state = flushReached
		f.cond.Broadcast()
	}
}

// wait blocks until the loop acknowledged the request and rearms the
// barrier.
func (f *flushBarrier) wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.state == flushRequested {
		f.cond.Wait()
	}
	f.state = flushIdle
}

func (f *flushBarrier) current() flushState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
