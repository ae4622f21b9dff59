package audio

import (
	"encoding/binary"
	"math"
)

// Default meter calibration. Raw RMS values at or below DefaultMeterBase
// render as silence; DefaultMeterBase+DefaultMeterSpan renders as full scale.
const (
	DefaultMeterBase = 0.005
	DefaultMeterSpan = 0.04
)

// RMS returns the root-mean-square of samples already centred on zero and
// scaled to [-1, 1]. Returns 0 for an empty slice.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// RMSAnalyser returns the RMS energy of an unsigned 8-bit time-domain buffer
// as produced by a browser AnalyserNode, where 128 is the zero line. Each
// byte b is centred as (b-128)/128 before squaring.
func RMSAnalyser(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, b := range buf {
		v := (float64(b) - 128) / 128
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(buf)))
}

// RMSPCM16 returns the RMS energy of 16-bit signed little-endian PCM with
// every sample scaled as s/32768, so the result lives on the same [0, 1]
// scale as [RMSAnalyser]. A trailing odd byte is ignored.
func RMSPCM16(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:i*2+2]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Meter maps raw RMS energy onto a display level in [0, 1].
// The zero value is usable and behaves as a hard gate at 0.
type Meter struct {
	// Base is the raw energy that maps to level 0.
	Base float64

	// Span is the raw energy range above Base that maps to level 1.
	Span float64
}

// DefaultMeter returns a Meter with the default calibration.
func DefaultMeter() Meter {
	return Meter{Base: DefaultMeterBase, Span: DefaultMeterSpan}
}

// Level returns clamp((raw-Base)/Span, 0, 1). With a non-positive Span it
// returns 0 for raw <= Base and 1 otherwise. Level is pure.
func (m Meter) Level(raw float64) float64 {
	if math.IsNaN(raw) {
		return 0
	}
	if m.Span <= 0 {
		if raw > m.Base {
			return 1
		}
		return 0
	}
	v := (raw - m.Base) / m.Span
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
