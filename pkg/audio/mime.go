package audio

import "strings"

// MIME types the capture path and the recognisers exchange.
const (
	MIMEWebM = "audio/webm"
	MIMEOgg  = "audio/ogg"
	MIMEMP4  = "audio/mp4"
	MIMEWAV  = "audio/wav"
)

// FilenameForMIME returns the upload filename hint for a recording container.
// Recognition services use the extension to pick a decoder, so unknown types
// get a neutral ".bin". An empty MIME type is treated as WebM, which is what
// browsers record by default.
func FilenameForMIME(mime string) string {
	m := strings.ToLower(mime)
	switch {
	case m == "":
		return "chunk.webm"
	case strings.Contains(m, "webm"):
		return "chunk.webm"
	case strings.Contains(m, "ogg"):
		return "chunk.ogg"
	case strings.Contains(m, "mp4"):
		return "chunk.mp4"
	case strings.Contains(m, "wav"):
		return "chunk.wav"
	default:
		return "chunk.bin"
	}
}

// MIMEForFilename is the inverse of [FilenameForMIME] for uploads that arrive
// without a usable Content-Type. Returns "" when the extension is unknown.
func MIMEForFilename(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, ".webm"):
		return MIMEWebM
	case strings.HasSuffix(n, ".ogg"), strings.HasSuffix(n, ".oga"):
		return MIMEOgg
	case strings.HasSuffix(n, ".mp4"), strings.HasSuffix(n, ".m4a"):
		return MIMEMP4
	case strings.HasSuffix(n, ".wav"):
		return MIMEWAV
	default:
		return ""
	}
}
