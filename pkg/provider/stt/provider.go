// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The assistant segments speech itself, so recognisers only ever see finished
// utterances: one [audio.Recording] in, one [Transcript] out. Providers wrap
// a remote transcription endpoint, a whisper.cpp server or library, or a
// hosted API behind that single call.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/komekshi/pkg/audio"
)

// ErrUnsupportedFormat is returned when a provider cannot decode the
// recording's container (e.g., a PCM-only engine handed WebM).
var ErrUnsupportedFormat = errors.New("stt: unsupported audio format")

// Options carries per-call recognition hints. The zero value lets the
// provider use its configured defaults.
type Options struct {
	// Language is the BCP-47 language tag for recognition (e.g., "kk", "ru").
	// Empty lets the provider use its default or auto-detect.
	Language string

	// Prompt is free text that biases recognition towards expected words
	// (e.g., the wake word), for providers that support it.
	Prompt string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe recognises the speech in rec. An utterance without speech
	// yields an empty Text and a nil error.
	Transcribe(ctx context.Context, rec audio.Recording, opts Options) (Transcript, error)
}
