package engine

import (
	"sync"

	"audiosync/engine/metronom"
	"audiosync/engine/pcm"
)

// Stream is a producer attached to a port. The port keeps only a relation
// to it, used to feed clock corrections back into its metronom.
type Stream struct {
	Name     string
	Metronom *metronom.Metronom

	mu     sync.Mutex
	format pcm.Format
	port   *Port
}

func NewStream(name string, m *metronom.Metronom) *Stream {
	return &Stream{Name: name, Metronom: m}
}

// Format is the format the stream was last opened with.
func (s *Stream) Format() pcm.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func (s *Stream) attached(p *Port) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port == p
}

func (s *Stream) attach(p *Port, f pcm.Format) {
	s.mu.Lock()
	s.port = p
	s.format = f
	s.mu.Unlock()
}

func (s *Stream) detach() {
	s.mu.Lock()
	s.port = nil
	s.mu.Unlock()
}

func (s *Stream) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}

// registry lists the streams attached to a port in attach order. Its lock is
// independent of the driver lock.
type registry struct {
	mu      sync.Mutex
	streams []*Stream
}

func (r *registry) add(s *Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.streams {
		if o == s {
			return
		}
	}
	r.streams = append(r.streams, s)
}

func (r *registry) remove(s *Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.streams {
		if o == s {
			r.streams = append(r.streams[:i], r.streams[i+1:]...)
			return true
		}
	}
	return false
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

func (r *registry) each(fn func(*Stream)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.streams {
		fn(s)
	}
}

// adjustOffsets shifts the vpts offset of every attached stream.
func (r *registry) adjustOffsets(delta int64) int {
	n := 0
	r.each(func(s *Stream) {
		if s.Metronom != nil {
			s.Metronom.AdjustVPTSOffset(delta)
			n++
		}
	})
	return n
}
