package stt

import "time"

// Transcript is the recognition result for one utterance.
type Transcript struct {
	// Text is the recognised speech, trimmed.
	Text string

	// Language is the language the provider recognised, when reported.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Duration is the length of the audio the provider processed.
	Duration time.Duration
}
