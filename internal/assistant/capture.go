package assistant

import (
	"regexp"

	"github.com/MrWong99/komekshi/internal/present"
)

// Failure classifies a microphone acquisition error reported by the page.
type Failure string

const (
	FailurePermissionDenied Failure = "permission-denied"
	FailureDeviceNotFound   Failure = "device-not-found"
	FailureInsecureContext  Failure = "insecure-context"
	FailureOther            Failure = "other"
)

var (
	rePermission = regexp.MustCompile(`(?i)NotAllowed|Permission`)
	reNotFound   = regexp.MustCompile(`(?i)NotFound|Devices`)
	reSecurity   = regexp.MustCompile(`(?i)SecurityError`)
)

// Classify maps the error name (or message) of a failed getUserMedia call to
// a [Failure]. The checks run in order; the first match wins.
func Classify(name string) Failure {
	switch {
	case rePermission.MatchString(name):
		return FailurePermissionDenied
	case reNotFound.MatchString(name):
		return FailureDeviceNotFound
	case reSecurity.MatchString(name):
		return FailureInsecureContext
	default:
		return FailureOther
	}
}

// Remediation returns the status line for f.
func Remediation(f Failure, msgs present.Messages) string {
	msgs = msgs.WithDefaults()
	switch f {
	case FailurePermissionDenied:
		return msgs.PermissionDenied
	case FailureDeviceNotFound:
		return msgs.DeviceNotFound
	case FailureInsecureContext:
		return msgs.InsecureContext
	default:
		return msgs.CaptureFailed
	}
}

// ReportCaptureFailure renders the terminal capture failure for name into
// sink: the remediation status followed by the hint list. No session runs
// afterwards and nothing retries.
func ReportCaptureFailure(sink present.Sink, msgs present.Messages, name string) Failure {
	msgs = msgs.WithDefaults()
	f := Classify(name)
	sink.Status(Remediation(f, msgs))
	sink.Answer(present.HintMarkup(msgs.Hints))
	return f
}
