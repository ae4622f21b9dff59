package main

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/komekshi/internal/config"
	"github.com/MrWong99/komekshi/internal/instrument"
	"github.com/MrWong99/komekshi/internal/observe"
	"github.com/MrWong99/komekshi/internal/resilience"
	"github.com/MrWong99/komekshi/pkg/provider/answer"
	answerremote "github.com/MrWong99/komekshi/pkg/provider/answer/remote"
	"github.com/MrWong99/komekshi/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/komekshi/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/komekshi/pkg/provider/embeddings/openai"
	"github.com/MrWong99/komekshi/pkg/provider/llm"
	"github.com/MrWong99/komekshi/pkg/provider/llm/anyllm"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
	"github.com/MrWong99/komekshi/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/komekshi/pkg/provider/stt/openai"
	sttremote "github.com/MrWong99/komekshi/pkg/provider/stt/remote"
	"github.com/MrWong99/komekshi/pkg/provider/stt/whisper"
)

// ── Registration ──────────────────────────────────────────────────────────────

// registerBuiltinProviders wires every provider that ships with komekshi
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = optString(e.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(e.Options, "concurrency"); n > 0 {
			opts = append(opts, whisper.WithNativeConcurrency(n))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("remote", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []sttremote.Option
		if p := optString(e.Options, "path"); p != "" {
			opts = append(opts, sttremote.WithPath(p))
		}
		if e.APIKey != "" {
			opts = append(opts, sttremote.WithAPIKey(e.APIKey))
		}
		return sttremote.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if e.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(e.BaseURL))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(e.APIKey, e.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	// ── Answer ────────────────────────────────────────────────────────────────

	reg.RegisterAnswer("remote", func(e config.ProviderEntry) (answer.Provider, error) {
		var opts []answerremote.Option
		if p := optString(e.Options, "path"); p != "" {
			opts = append(opts, answerremote.WithPath(p))
		}
		if e.APIKey != "" {
			opts = append(opts, answerremote.WithAPIKey(e.APIKey))
		}
		return answerremote.New(e.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// Every any-llm backend takes an optional API key and base URL; ollama
	// is addressed by URL only.

	for _, name := range []string{"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"} {
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if e.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(e.BaseURL))
		}
		if n := optInt(e.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(e.APIKey, e.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if n := optInt(e.Options, "dimensions"); n > 0 {
			opts = append(opts, ollamaembed.WithDimensions(n))
		}
		return ollamaembed.New(e.BaseURL, e.Model, opts...)
	})

	for kind, names := range reg.Names() {
		slog.Debug("registered providers", "kind", kind, "names", names)
	}
}

// ── Construction ──────────────────────────────────────────────────────────────

// providers holds the instantiated, instrumented backends. Nil fields are
// not configured.
type providers struct {
	STT        stt.Provider
	Answer     answer.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider

	// Groups exposes the failover groups for readiness checks.
	STTGroup    *resilience.STTFallback
	AnswerGroup *resilience.AnswerFallback
}

// buildProviders instantiates every configured provider. Entries with
// fallbacks are wrapped in a failover group; each backend is instrumented
// under its own name.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*providers, error) {
	ps := &providers{}
	fb := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Info("provider circuit changed", "provider", name, "from", from, "to", to)
		},
	}}

	if e := cfg.Providers.STT; e.Name != "" {
		create := func(e config.ProviderEntry) (stt.Provider, error) {
			p, err := reg.CreateSTT(e)
			if err != nil {
				return nil, err
			}
			return instrument.WrapSTT(p, e.Name, m), nil
		}
		primary, err := create(e)
		if err != nil {
			return nil, fmt.Errorf("stt provider %q: %w", e.Name, err)
		}
		ps.STT = primary
		if len(e.Fallbacks) > 0 {
			g := resilience.NewSTTFallback(e.Name, primary, fb)
			for _, f := range e.Fallbacks {
				p, err := create(f)
				if err != nil {
					return nil, fmt.Errorf("stt fallback %q: %w", f.Name, err)
				}
				g.Add(f.Name, p)
			}
			ps.STT, ps.STTGroup = g, g
		}
	}

	if e := cfg.Providers.Answer; e.Name != "" {
		primary, err := reg.CreateAnswer(e)
		if err != nil {
			return nil, fmt.Errorf("answer provider %q: %w", e.Name, err)
		}
		g := resilience.NewAnswerFallback(e.Name, instrument.WrapAnswer(primary, e.Name, m), fb)
		for _, f := range e.Fallbacks {
			p, err := reg.CreateAnswer(f)
			if err != nil {
				return nil, fmt.Errorf("answer fallback %q: %w", f.Name, err)
			}
			g.Add(f.Name, instrument.WrapAnswer(p, f.Name, m))
		}
		ps.Answer, ps.AnswerGroup = g, g
	}

	if e := cfg.Providers.LLM; e.Name != "" {
		primary, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("llm provider %q: %w", e.Name, err)
		}
		ps.LLM = instrument.WrapLLM(primary, e.Name, m)
		if len(e.Fallbacks) > 0 {
			g := resilience.NewLLMFallback(e.Name, ps.LLM, fb)
			for _, f := range e.Fallbacks {
				p, err := reg.CreateLLM(f)
				if err != nil {
					return nil, fmt.Errorf("llm fallback %q: %w", f.Name, err)
				}
				g.Add(f.Name, instrument.WrapLLM(p, f.Name, m))
			}
			ps.LLM = g
		}
	}

	if e := cfg.Providers.Embeddings; e.Name != "" {
		p, err := reg.CreateEmbeddings(e)
		if err != nil {
			return nil, fmt.Errorf("embeddings provider %q: %w", e.Name, err)
		}
		ps.Embeddings = instrument.WrapEmbeddings(p, e.Name, m)
	}

	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer from a provider Options map. YAML numbers
// decode as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
