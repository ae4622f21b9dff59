package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/komekshi/pkg/audio"
)

func TestRMSAnalyser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  []byte
		want float64
	}{
		{name: "empty", buf: nil, want: 0},
		{name: "silence at zero line", buf: []byte{128, 128, 128, 128}, want: 0},
		{name: "full swing", buf: []byte{0, 0, 0, 0}, want: 1},
		{name: "small square wave", buf: []byte{130, 126, 130, 126}, want: 2.0 / 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.RMSAnalyser(tt.buf); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RMSAnalyser() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRMSPCM16(t *testing.T) {
	t.Parallel()

	if got := audio.RMSPCM16(nil); got != 0 {
		t.Errorf("empty: got %v, want 0", got)
	}
	pcm := samplesToBytes([]int16{16384, -16384, 16384, -16384})
	if got := audio.RMSPCM16(pcm); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("square wave: got %v, want 0.5", got)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := audio.RMS([]float64{0.3, -0.3}); math.Abs(got-0.3) > 1e-12 {
		t.Errorf("RMS() = %v, want 0.3", got)
	}
}

func TestMeterLevel(t *testing.T) {
	t.Parallel()

	m := audio.DefaultMeter()
	tests := []struct {
		raw  float64
		want float64
	}{
		{raw: 0, want: 0},
		{raw: 0.005, want: 0},
		{raw: 0.025, want: 0.5},
		{raw: 0.045, want: 1},
		{raw: 0.9, want: 1},
		{raw: math.NaN(), want: 0},
	}
	for _, tt := range tests {
		if got := m.Level(tt.raw); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Level(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestMeterLevel_Idempotent(t *testing.T) {
	t.Parallel()

	m := audio.DefaultMeter()
	buf := []byte{120, 140, 110, 150, 128, 100}
	first := m.Level(audio.RMSAnalyser(buf))
	for range 10 {
		if got := m.Level(audio.RMSAnalyser(buf)); got != first {
			t.Fatalf("level changed between identical calls: %v != %v", got, first)
		}
	}
}

func TestMeterLevel_ZeroSpan(t *testing.T) {
	t.Parallel()

	m := audio.Meter{Base: 0.01}
	if got := m.Level(0.01); got != 0 {
		t.Errorf("at base: got %v, want 0", got)
	}
	if got := m.Level(0.011); got != 1 {
		t.Errorf("above base: got %v, want 1", got)
	}
}
