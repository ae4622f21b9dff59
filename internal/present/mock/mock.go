// Package mock provides a recording test double for [present.Sink].
//
// Every call is appended to Calls in order, so tests can assert both what was
// rendered and in which sequence:
//
//	sink := &mock.Sink{}
//	dispatcher := dispatch.New(provider, sink, msgs)
//	...
//	if got := sink.Statuses(); ...
package mock

import (
	"sync"

	"github.com/MrWong99/komekshi/internal/present"
)

// Call is one recorded Sink invocation. Only the field matching Kind is set.
type Call struct {
	Kind  present.EventType
	Text  string
	URL   string
	State present.State
	Level float64
}

// Sink is a mock implementation of [present.Sink]. Safe for concurrent use.
type Sink struct {
	mu sync.Mutex

	// Calls records every call except Level, in order.
	Calls []Call

	// LevelCalls records every Level value, in order.
	LevelCalls []float64

	// OnCall, if set, is invoked after each recorded call (outside the lock).
	OnCall func(Call)
}

func (s *Sink) record(c Call) {
	s.mu.Lock()
	if c.Kind == present.EventLevel {
		s.LevelCalls = append(s.LevelCalls, c.Level)
	} else {
		s.Calls = append(s.Calls, c)
	}
	hook := s.OnCall
	s.mu.Unlock()
	if hook != nil {
		hook(c)
	}
}

func (s *Sink) Status(text string)     { s.record(Call{Kind: present.EventStatus, Text: text}) }
func (s *Sink) Transcript(text string) { s.record(Call{Kind: present.EventTranscript, Text: text}) }
func (s *Sink) Answer(markup string)   { s.record(Call{Kind: present.EventAnswer, Text: markup}) }
func (s *Sink) Play(url string)        { s.record(Call{Kind: present.EventPlay, URL: url}) }
func (s *Sink) State(st present.State) { s.record(Call{Kind: present.EventState, State: st}) }
func (s *Sink) Level(v float64)        { s.record(Call{Kind: present.EventLevel, Level: v}) }

// Snapshot returns a copy of the recorded non-level calls.
func (s *Sink) Snapshot() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.Calls))
	copy(out, s.Calls)
	return out
}

// Of returns the recorded calls of one kind, in order.
func (s *Sink) Of(kind present.EventType) []Call {
	var out []Call
	for _, c := range s.Snapshot() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Statuses returns the texts of all Status calls, in order.
func (s *Sink) Statuses() []string {
	var out []string
	for _, c := range s.Of(present.EventStatus) {
		out = append(out, c.Text)
	}
	return out
}

// Levels returns a copy of the recorded Level values.
func (s *Sink) Levels() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.LevelCalls))
	copy(out, s.LevelCalls)
	return out
}

// Reset clears all recorded calls.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
	s.LevelCalls = nil
}

var _ present.Sink = (*Sink)(nil)
