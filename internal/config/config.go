// Package config holds the configuration schema, the YAML loader, the file
// watcher used for hot reload and the provider registry of the komekshi
// server.
package config

import (
	"time"

	"github.com/MrWong99/komekshi/internal/present"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root of the YAML configuration file.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Capture   CaptureConfig    `yaml:"capture"`
	VAD       VADConfig        `yaml:"vad"`
	Wake      WakeConfig       `yaml:"wake"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Answer    AnswerConfig     `yaml:"answer"`
	Providers ProvidersConfig  `yaml:"providers"`
	Storage   StorageConfig    `yaml:"storage"`
	Messages  present.Messages `yaml:"messages"`
}

// ServerConfig holds the HTTP surface and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address to listen on (e.g. ":8000").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir is served under /static/ and holds the answer audio.
	StaticDir string `yaml:"static_dir"`

	// OriginPatterns lists extra hosts allowed to open the capture websocket.
	OriginPatterns []string `yaml:"origin_patterns"`

	// MaxUploadBytes caps /api/transcribe uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TLS enables HTTPS. Browsers only grant microphone access on secure
	// origins other than localhost.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds PEM certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// CaptureConfig tunes how utterances are handed to the recogniser.
type CaptureConfig struct {
	// Language is passed to the recogniser (e.g. "kk"). Empty auto-detects.
	Language string `yaml:"language"`

	// Prompt biases recognition, typically towards the wake word.
	Prompt string `yaml:"prompt"`

	// TranscribeTimeout bounds one recognition call.
	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`

	// TranscribeQueue is the number of finished utterances that may wait for
	// the recogniser per session.
	TranscribeQueue int `yaml:"transcribe_queue"`
}

// VADConfig tunes the energy segmenter and the level meter.
type VADConfig struct {
	// Threshold is the RMS energy a tick must exceed to count as speech.
	Threshold float64 `yaml:"threshold"`

	// Hang is the trailing silence that ends an utterance.
	Hang time.Duration `yaml:"hang"`

	// MinBytes discards recordings whose voiced PCM, onset through the last
	// loud tick, is shorter.
	MinBytes int `yaml:"min_bytes"`

	// MaxUtterance cuts continuous speech. Zero disables the cut.
	MaxUtterance time.Duration `yaml:"max_utterance"`

	MeterBase float64 `yaml:"meter_base"`
	MeterSpan float64 `yaml:"meter_span"`
}

// WakeConfig configures the wake-word gate.
type WakeConfig struct {
	// Triggers replaces the built-in wake phrases when non-empty.
	Triggers []string `yaml:"triggers"`

	// Timeout is the length of the awake window.
	Timeout time.Duration `yaml:"timeout"`

	// AckSentinel is dispatched when only the wake word was heard.
	AckSentinel string `yaml:"ack_sentinel"`

	// FuzzyThreshold enables Jaro-Winkler matching of misheard wake words
	// when in (0, 1].
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// DispatchConfig tunes the per-session answer dispatcher.
type DispatchConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`

	// Fence drops replies superseded by a newer request. Default: true.
	Fence *bool `yaml:"fence"`
}

// FenceEnabled reports the effective fencing setting.
func (d DispatchConfig) FenceEnabled() bool {
	return d.Fence == nil || *d.Fence
}

// AnswerConfig configures the local answer service.
type AnswerConfig struct {
	// IndexPath is the answer index JSON file.
	IndexPath string `yaml:"index_path"`

	// StripNames replaces the assistant names removed from query starts.
	StripNames []string `yaml:"strip_names"`

	// SemanticThreshold is the largest cosine distance accepted by the
	// embeddings matcher.
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// ProvidersConfig selects the backend for each provider kind. An empty Name
// disables the kind. A configured answer provider replaces the local index;
// the index then serves as its last fallback.
type ProvidersConfig struct {
	STT        ProviderEntry `yaml:"stt"`
	Answer     ProviderEntry `yaml:"answer"`
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry configures one provider instance. Name selects the factory
// in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// StorageConfig selects where dialogue history and embedded keys live.
type StorageConfig struct {
	// PostgresDSN enables the Postgres store. Empty keeps everything in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions sizes the vector column; it must match the
	// embeddings model.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// HistoryCapacity bounds the in-memory history.
	HistoryCapacity int `yaml:"history_capacity"`

	// HistoryBuffer is the number of entries queued for the store.
	HistoryBuffer int `yaml:"history_buffer"`
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr          = ":8000"
	DefaultStaticDir           = "static"
	DefaultIndexPath           = "static/index.json"
	DefaultEmbeddingDimensions = 1536
	DefaultHistoryBuffer       = 64
)

// ApplyDefaults fills the fields whose zero value is not a usable setting.
// Tuning knobs left at zero are resolved by the packages that own them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = DefaultStaticDir
	}
	if cfg.Answer.IndexPath == "" {
		cfg.Answer.IndexPath = DefaultIndexPath
	}
	if cfg.Storage.EmbeddingDimensions <= 0 {
		cfg.Storage.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if cfg.Storage.HistoryBuffer <= 0 {
		cfg.Storage.HistoryBuffer = DefaultHistoryBuffer
	}
}
