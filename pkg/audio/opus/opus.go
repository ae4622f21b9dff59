// Package opus decodes Opus packets sent by capture clients (for example a
// browser WebCodecs AudioEncoder) into 16-bit PCM frames.
package opus

import (
	"errors"
	"fmt"
	"time"

	"layeh.com/gopus"

	"github.com/MrWong99/komekshi/pkg/audio"
)

// Opus always decodes at one of its native rates; 48 kHz is what browsers
// produce.
const (
	DefaultSampleRate = 48000

	// maxFrameSamples is the longest Opus packet (120 ms) at 48 kHz, per channel.
	maxFrameSamples = 5760
)

// ErrEmptyPacket is returned by [Decoder.Decode] for zero-length input.
var ErrEmptyPacket = errors.New("opus: empty packet")

// Decoder turns a single client's Opus packets into [audio.AudioFrame]
// values. Decoder state carries across packets, so each stream needs its own
// Decoder. Not safe for concurrent use.
type Decoder struct {
	dec        *gopus.Decoder
	sampleRate int
	channels   int
	elapsed    time.Duration
}

// NewDecoder creates a Decoder for the given output format. sampleRate must be
// one of 8000, 12000, 16000, 24000 or 48000; channels must be 1 or 2.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder %dHz/%dch: %w", sampleRate, channels, err)
	}
	return &Decoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// Decode decodes one Opus packet. The returned frame's Timestamp is the
// running stream position before this packet.
func (d *Decoder) Decode(packet []byte) (audio.AudioFrame, error) {
	if len(packet) == 0 {
		return audio.AudioFrame{}, ErrEmptyPacket
	}
	pcm, err := d.dec.Decode(packet, maxFrameSamples, false)
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("opus: decode: %w", err)
	}
	frame := audio.AudioFrame{
		Data:       audio.Int16ToPCM(pcm),
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		Timestamp:  d.elapsed,
	}
	d.elapsed += frame.Duration()
	return frame, nil
}

// SampleRate returns the decoder's output rate in Hz.
func (d *Decoder) SampleRate() int { return d.sampleRate }

// Channels returns the decoder's output channel count.
func (d *Decoder) Channels() int { return d.channels }
