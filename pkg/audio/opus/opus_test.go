package opus_test

import (
	"errors"
	"testing"
	"time"

	"layeh.com/gopus"

	"github.com/MrWong99/komekshi/pkg/audio/opus"
)

func TestDecoder_RoundTrip(t *testing.T) {
	t.Parallel()

	const frameSize = 960 // 20 ms at 48 kHz
	enc, err := gopus.NewEncoder(48000, 1, gopus.Audio)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	pcm := make([]int16, frameSize)
	for i := range pcm {
		pcm[i] = int16((i % 48) * 200)
	}
	packet, err := enc.Encode(pcm, frameSize, 4000)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := opus.NewDecoder(48000, 1)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	first, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(first.Data) != frameSize*2 {
		t.Errorf("decoded %d bytes, want %d", len(first.Data), frameSize*2)
	}
	if first.SampleRate != 48000 || first.Channels != 1 {
		t.Errorf("format = %d/%d, want 48000/1", first.SampleRate, first.Channels)
	}
	if first.Timestamp != 0 {
		t.Errorf("first timestamp = %v, want 0", first.Timestamp)
	}

	second, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if second.Timestamp != 20*time.Millisecond {
		t.Errorf("second timestamp = %v, want 20ms", second.Timestamp)
	}
}

func TestDecoder_EmptyPacket(t *testing.T) {
	t.Parallel()

	dec, err := opus.NewDecoder(0, 0)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.SampleRate() != opus.DefaultSampleRate || dec.Channels() != 1 {
		t.Errorf("defaults = %d/%d", dec.SampleRate(), dec.Channels())
	}
	if _, err := dec.Decode(nil); !errors.Is(err, opus.ErrEmptyPacket) {
		t.Errorf("err = %v, want ErrEmptyPacket", err)
	}
}
