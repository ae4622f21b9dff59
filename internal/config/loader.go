package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownProviders lists the built-in provider names per kind. Unknown names
// only produce a warning so third-party factories can be registered.
var KnownProviders = map[string][]string{
	"stt":        {"whisper", "whisper-native", "remote", "openai", "deepgram"},
	"answer":     {"remote"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates. An
// empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg and joins every problem found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		add("server.tls needs both cert_file and key_file")
	}
	if cfg.Server.MaxUploadBytes < 0 {
		add("server.max_upload_bytes must not be negative")
	}

	if cfg.Capture.TranscribeTimeout < 0 {
		add("capture.transcribe_timeout must not be negative")
	}
	if cfg.Capture.TranscribeQueue < 0 {
		add("capture.transcribe_queue must not be negative")
	}

	if cfg.VAD.Threshold < 0 {
		add("vad.threshold %.4f must not be negative", cfg.VAD.Threshold)
	}
	if cfg.VAD.Hang < 0 || cfg.VAD.MaxUtterance < 0 {
		add("vad durations must not be negative")
	}
	if cfg.VAD.MinBytes < 0 {
		add("vad.min_bytes must not be negative")
	}
	if cfg.VAD.MeterSpan < 0 {
		add("vad.meter_span must not be negative")
	}

	if cfg.Wake.Timeout < 0 {
		add("wake.timeout must not be negative")
	}
	if cfg.Wake.FuzzyThreshold < 0 || cfg.Wake.FuzzyThreshold > 1 {
		add("wake.fuzzy_threshold %.2f is out of range [0, 1]", cfg.Wake.FuzzyThreshold)
	}
	for i, t := range cfg.Wake.Triggers {
		if t == "" {
			add("wake.triggers[%d] is empty", i)
		}
	}

	if cfg.Dispatch.QueueSize < 0 || cfg.Dispatch.Concurrency < 0 || cfg.Dispatch.Timeout < 0 {
		add("dispatch values must not be negative")
	}

	if cfg.Answer.SemanticThreshold < 0 || cfg.Answer.SemanticThreshold > 2 {
		add("answer.semantic_threshold %.2f is out of range [0, 2]", cfg.Answer.SemanticThreshold)
	}

	validateEntry(&errs, "stt", "providers.stt", cfg.Providers.STT)
	validateEntry(&errs, "answer", "providers.answer", cfg.Providers.Answer)
	validateEntry(&errs, "llm", "providers.llm", cfg.Providers.LLM)
	validateEntry(&errs, "embeddings", "providers.embeddings", cfg.Providers.Embeddings)

	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; capture sessions and /api/transcribe are disabled")
	}
	if len(cfg.Providers.Embeddings.Fallbacks) > 0 {
		add("providers.embeddings does not support fallbacks; vectors of different models are not comparable")
	}

	if cfg.Storage.EmbeddingDimensions <= 0 {
		add("storage.embedding_dimensions must be positive")
	}
	if cfg.Storage.HistoryCapacity < 0 || cfg.Storage.HistoryBuffer < 0 {
		add("storage history sizes must not be negative")
	}

	return errors.Join(errs...)
}

func validateEntry(errs *[]error, kind, path string, e ProviderEntry) {
	if e.Name == "" {
		if len(e.Fallbacks) > 0 {
			*errs = append(*errs, fmt.Errorf("%s.fallbacks requires %s.name", path, path))
		}
		return
	}
	warnUnknownProvider(kind, e.Name)
	for i, fb := range e.Fallbacks {
		fpath := fmt.Sprintf("%s.fallbacks[%d]", path, i)
		if fb.Name == "" {
			*errs = append(*errs, fmt.Errorf("%s.name is required", fpath))
			continue
		}
		if len(fb.Fallbacks) > 0 {
			*errs = append(*errs, fmt.Errorf("%s.fallbacks: fallbacks do not nest", fpath))
		}
		warnUnknownProvider(kind, fb.Name)
	}
}

func warnUnknownProvider(kind, name string) {
	known := KnownProviders[kind]
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
