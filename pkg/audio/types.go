package audio

import "time"

// AudioFrame is a single block of captured audio flowing through the tick loop.
// One frame produces one tick: the meter and the segmenter see it exactly once.
type AudioFrame struct {
	// PCM audio data, 16-bit signed little-endian.
	Data []byte

	// SampleRate in Hz (e.g., 48000 from a browser AudioContext, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame derived from its byte
// count. Returns 0 for frames without a valid format.
func (f AudioFrame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate, f.Channels)
}

// Recording is one finished utterance: the bytes captured between speech
// onset and offset. It is owned by whoever holds it; producers never touch a
// Recording after handing it off.
type Recording struct {
	// Data holds the encoded audio. For MIMEType "audio/wav" this is a
	// complete RIFF container.
	Data []byte

	// MIMEType is the container type of Data (e.g., "audio/wav",
	// "audio/webm"). Empty means unknown.
	MIMEType string

	// SampleRate and Channels describe the PCM inside Data when known.
	SampleRate int
	Channels   int

	// Duration is the captured length of the utterance.
	Duration time.Duration
}

// Len returns the size of the recording in bytes.
func (r Recording) Len() int { return len(r.Data) }

// PCMDuration returns the duration of n bytes of 16-bit PCM at the given
// format. Returns 0 for invalid inputs.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * 2
	return time.Duration(n) * time.Second / time.Duration(bytesPerSec)
}
