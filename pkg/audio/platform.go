// Package audio defines the frame and recording types shared by the capture
// path, plus the small amount of signal processing the tick loop needs:
// energy measurement, format conversion and WAV packaging.
//
// The primary abstraction is [Stream]: a live capture source (for example a
// browser connected over a websocket) that delivers [AudioFrame] values in
// capture order until it ends.
//
// This package lives under pkg/ because external code (other capture
// transports) is expected to implement [Stream].
package audio

// EventType classifies client-side playback notifications delivered by a
// [Stream].
type EventType int

const (
	// EventPlaybackStarted is emitted when the client starts playing a reply.
	EventPlaybackStarted EventType = iota

	// EventPlaybackEnded is emitted when playback ends or is paused.
	EventPlaybackEnded
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventPlaybackStarted:
		return "PLAYBACK_STARTED"
	case EventPlaybackEnded:
		return "PLAYBACK_ENDED"
	default:
		return "UNKNOWN"
	}
}

// Stream represents an active capture session from a single client.
//
// The channel returned by Frames is closed when the stream terminates. All
// methods must be safe for concurrent use.
type Stream interface {
	// Frames returns the read-only channel of captured frames, in capture order.
	Frames() <-chan AudioFrame

	// OnEvent registers cb for playback notifications. Only one callback may be
	// registered at a time; the callback runs on the reader goroutine and must
	// not block.
	OnEvent(cb func(EventType))

	// Close ends the stream. Safe to call more than once.
	Close() error
}
