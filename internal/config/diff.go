package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeChanged is set when triggers, timeout, sentinel or fuzzy matching
	// changed. Live sessions pick the new rules up immediately.
	WakeChanged bool

	// MessagesChanged is set when any status string or hint changed.
	MessagesChanged bool

	// SessionChanged is set when capture, VAD or dispatch tuning changed.
	// Only sessions opened afterwards see it.
	SessionChanged bool

	// IndexChanged is set when the answer index path changed.
	IndexChanged bool

	// RestartRequired lists changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Changed reports whether anything hot-reloadable changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.WakeChanged || d.MessagesChanged || d.SessionChanged || d.IndexChanged
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.WakeChanged = !slices.Equal(old.Wake.Triggers, new.Wake.Triggers) ||
		old.Wake.Timeout != new.Wake.Timeout ||
		old.Wake.AckSentinel != new.Wake.AckSentinel ||
		old.Wake.FuzzyThreshold != new.Wake.FuzzyThreshold

	d.MessagesChanged = !reflect.DeepEqual(old.Messages, new.Messages)

	d.SessionChanged = old.Capture != new.Capture ||
		old.VAD != new.VAD ||
		!reflect.DeepEqual(old.Dispatch, new.Dispatch)

	d.IndexChanged = old.Answer.IndexPath != new.Answer.IndexPath

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !slices.Equal(old.Answer.StripNames, new.Answer.StripNames) ||
		old.Answer.SemanticThreshold != new.Answer.SemanticThreshold {
		d.RestartRequired = append(d.RestartRequired, "answer")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	return d
}
