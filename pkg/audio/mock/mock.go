// Package mock provides an in-memory mock implementation of [audio.Stream]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields that the
// test can set to control behaviour.
//
// Typical usage:
//
//	frames := make(chan audio.AudioFrame, 16)
//	s := &mock.Stream{FramesCh: frames}
//	frames <- audio.AudioFrame{Data: pcm, SampleRate: 16000, Channels: 1}
//	close(frames)
//	s.Emit(audio.EventPlaybackStarted)
package mock

import (
	"sync"

	"github.com/MrWong99/komekshi/pkg/audio"
)

// Stream is a mock implementation of [audio.Stream].
type Stream struct {
	mu sync.Mutex

	// FramesCh is returned by [Stream.Frames]. Tests own the channel and close
	// it to end the stream.
	FramesCh chan audio.AudioFrame

	// CloseError is returned by [Stream.Close].
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	cb func(audio.EventType)
}

// Frames returns FramesCh.
func (s *Stream) Frames() <-chan audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FramesCh
}

// OnEvent stores cb so that [Stream.Emit] can invoke it.
func (s *Stream) OnEvent(cb func(audio.EventType)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// Emit invokes the registered event callback synchronously. It is a no-op if
// no callback is registered.
func (s *Stream) Emit(ev audio.EventType) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// Close records the call and returns CloseError.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

var _ audio.Stream = (*Stream)(nil)
