package web

import (
	"sync"

	"github.com/MrWong99/komekshi/pkg/audio"
)

// wsStream is the [audio.Stream] of one websocket connection. The reader
// goroutine is its only producer.
type wsStream struct {
	frames chan audio.AudioFrame
	done   chan struct{}
	once   sync.Once

	mu sync.Mutex
	cb func(audio.EventType)
}

func newWSStream(buffer int) *wsStream {
	return &wsStream{
		frames: make(chan audio.AudioFrame, buffer),
		done:   make(chan struct{}),
	}
}

// Frames implements audio.Stream.
func (s *wsStream) Frames() <-chan audio.AudioFrame { return s.frames }

// OnEvent implements audio.Stream.
func (s *wsStream) OnEvent(cb func(audio.EventType)) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

// Close implements audio.Stream.
func (s *wsStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// push hands a frame to the consumer. It returns false once the stream is
// closed.
func (s *wsStream) push(f audio.AudioFrame) bool {
	select {
	case s.frames <- f:
		return true
	case <-s.done:
		return false
	}
}

func (s *wsStream) emit(ev audio.EventType) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// end closes the frame channel. Only the producer calls it.
func (s *wsStream) end() {
	close(s.frames)
}

var _ audio.Stream = (*wsStream)(nil)
