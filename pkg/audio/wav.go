package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// ErrNotWAV is returned by [DecodeWAV] when the input is not a 16-bit PCM
// RIFF/WAVE container.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM WAV container")

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a canonical
// 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV extracts the PCM payload and format from a RIFF/WAVE container.
// Chunks other than "fmt " and "data" are skipped. Only 16-bit integer PCM
// is accepted.
func DecodeWAV(b []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, 0, 0, ErrNotWAV
	}
	var sawFmt bool
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if body+size > len(b) {
			// Streaming encoders write a bogus data size; take what is there.
			if id == "data" && sawFmt {
				return b[body:], sampleRate, channels, nil
			}
			return nil, 0, 0, fmt.Errorf("audio: wav chunk %q overruns buffer: %w", id, ErrNotWAV)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, ErrNotWAV
			}
			format := binary.LittleEndian.Uint16(b[body : body+2])
			bits := binary.LittleEndian.Uint16(b[body+14 : body+16])
			if format != 1 || bits != 16 {
				return nil, 0, 0, fmt.Errorf("audio: wav format %d/%d bits: %w", format, bits, ErrNotWAV)
			}
			channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			sawFmt = true
		case "data":
			if !sawFmt {
				return nil, 0, 0, fmt.Errorf("audio: wav data before fmt: %w", ErrNotWAV)
			}
			return b[body : body+size], sampleRate, channels, nil
		}
		off = body + size + size%2
	}
	return nil, 0, 0, fmt.Errorf("audio: wav has no data chunk: %w", ErrNotWAV)
}
