// Package segment implements the voice-activity segmenter that cuts the
// capture stream into utterances.
//
// The state machine lives in [Step], a pure function over explicit state, so
// it can be driven from recorded tick sequences in tests. [Segmenter] wraps
// Step and owns the bytes of the recording in progress.
package segment

import "time"

// Default segmentation parameters.
const (
	DefaultThreshold = 0.012
	DefaultHang      = 500 * time.Millisecond
	DefaultMinBytes  = 2000
)

// Phase is the segmenter's recording phase.
type Phase int

const (
	// Silent means no recording is in progress.
	Silent Phase = iota

	// Collecting means a recording is in progress.
	Collecting
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case Silent:
		return "SILENT"
	case Collecting:
		return "COLLECTING"
	default:
		return "UNKNOWN"
	}
}

// Config holds the segmentation parameters.
type Config struct {
	// Threshold is the raw RMS energy a tick must strictly exceed to count as
	// speech.
	Threshold float64

	// Hang is how long energy must stay at or below Threshold after the last
	// loud tick before the utterance ends. The comparison is strict.
	Hang time.Duration

	// MinBytes is the smallest voiced span, onset through last loud tick,
	// that is emitted; shorter recordings are discarded as clicks and breaths.
	MinBytes int

	// MaxUtterance forces a cut during continuous speech. Zero disables it.
	MaxUtterance time.Duration
}

// DefaultConfig returns the stock segmentation parameters.
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		Hang:      DefaultHang,
		MinBytes:  DefaultMinBytes,
	}
}

// State is the segmenter's explicit state. The zero value is Silent.
type State struct {
	Phase Phase

	// LastSpeech is the tick time of the most recent loud tick.
	LastSpeech time.Duration

	// Started is the tick time at which the current recording began.
	Started time.Duration
}

// Tick is one observation of the capture stream.
type Tick struct {
	// At is the stream position of the tick. It must not decrease.
	At time.Duration

	// Energy is the raw RMS energy of the tick's audio.
	Energy float64
}

// Effect is an action [Step] asks its caller to perform.
type Effect int

const (
	// EffectStartRecording starts a new recording with the current tick.
	EffectStartRecording Effect = iota + 1

	// EffectFinalizeRecording ends the recording including the current tick.
	EffectFinalizeRecording
)

// String returns the human-readable name of the effect.
func (e Effect) String() string {
	switch e {
	case EffectStartRecording:
		return "START_RECORDING"
	case EffectFinalizeRecording:
		return "FINALIZE_RECORDING"
	default:
		return "UNKNOWN"
	}
}

// Step advances the segmenter by one tick and returns the new state plus the
// effects to execute, in order. It never emits more than one of each effect
// and never emits Start and Finalize for the same tick.
func Step(cfg Config, st State, t Tick) (State, []Effect) {
	var effects []Effect

	if t.Energy > cfg.Threshold {
		st.LastSpeech = t.At
		if st.Phase == Silent {
			st.Phase = Collecting
			st.Started = t.At
			effects = append(effects, EffectStartRecording)
			return st, effects
		}
	}

	if st.Phase != Collecting {
		return st, effects
	}

	if t.At-st.LastSpeech > cfg.Hang {
		st.Phase = Silent
		return st, append(effects, EffectFinalizeRecording)
	}
	if cfg.MaxUtterance > 0 && t.At-st.Started >= cfg.MaxUtterance {
		st.Phase = Silent
		return st, append(effects, EffectFinalizeRecording)
	}
	return st, effects
}
