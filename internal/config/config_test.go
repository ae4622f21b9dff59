package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/komekshi/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  static_dir: /srv/komekshi/static
  origin_patterns: ["kiosk.local"]
capture:
  language: kk
  prompt: көмекші
  transcribe_timeout: 20s
vad:
  threshold: 0.02
  hang: 700ms
  min_bytes: 4000
wake:
  triggers: ["көмекші", "komekshi"]
  timeout: 15s
  fuzzy_threshold: 0.9
dispatch:
  queue_size: 2
  fence: false
answer:
  index_path: /srv/komekshi/index.json
  semantic_threshold: 0.3
providers:
  stt:
    name: whisper
    base_url: http://localhost:8080
    fallbacks:
      - name: openai
        api_key: sk-test
        model: whisper-1
  llm:
    name: ollama
    model: llama3
  embeddings:
    name: ollama
    model: nomic-embed-text
storage:
  postgres_dsn: postgres://localhost/komekshi
  embedding_dimensions: 768
messages:
  listening: "Listening"
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.VAD.Hang != 700*time.Millisecond || cfg.VAD.MinBytes != 4000 {
		t.Errorf("vad = %+v", cfg.VAD)
	}
	if cfg.Wake.Timeout != 15*time.Second || len(cfg.Wake.Triggers) != 2 {
		t.Errorf("wake = %+v", cfg.Wake)
	}
	if cfg.Dispatch.FenceEnabled() {
		t.Error("fence should be disabled")
	}
	if fb := cfg.Providers.STT.Fallbacks; len(fb) != 1 || fb[0].Model != "whisper-1" {
		t.Errorf("stt fallbacks = %+v", fb)
	}
	if cfg.Storage.EmbeddingDimensions != 768 {
		t.Errorf("dims = %d", cfg.Storage.EmbeddingDimensions)
	}
	if cfg.Messages.Listening != "Listening" {
		t.Errorf("messages.listening = %q", cfg.Messages.Listening)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Answer.IndexPath != config.DefaultIndexPath {
		t.Errorf("index_path = %q", cfg.Answer.IndexPath)
	}
	if cfg.Storage.EmbeddingDimensions != config.DefaultEmbeddingDimensions {
		t.Errorf("dims = %d", cfg.Storage.EmbeddingDimensions)
	}
	if !cfg.Dispatch.FenceEnabled() {
		t.Error("fence should default to enabled")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil || !strings.Contains(err.Error(), "listen_adr") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"tls half set", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"negative threshold", "vad:\n  threshold: -0.1\n", "vad.threshold"},
		{"fuzzy out of range", "wake:\n  fuzzy_threshold: 1.5\n", "wake.fuzzy_threshold"},
		{"empty trigger", "wake:\n  triggers: [\"\"]\n", "wake.triggers[0]"},
		{"negative dispatch", "dispatch:\n  queue_size: -1\n", "dispatch"},
		{"semantic threshold", "answer:\n  semantic_threshold: 3\n", "answer.semantic_threshold"},
		{"fallback without name", "providers:\n  stt:\n    name: whisper\n    fallbacks:\n      - model: x\n", "providers.stt.fallbacks[0].name"},
		{"fallback without primary", "providers:\n  llm:\n    fallbacks:\n      - name: openai\n", "providers.llm.fallbacks requires"},
		{"nested fallbacks", "providers:\n  stt:\n    name: whisper\n    fallbacks:\n      - name: openai\n        fallbacks:\n          - name: deepgram\n", "do not nest"},
		{"embeddings fallbacks", "providers:\n  embeddings:\n    name: openai\n    fallbacks:\n      - name: ollama\n", "providers.embeddings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error mentioning %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: loud\nwake:\n  fuzzy_threshold: 2\n"))
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.log_level", "wake.fuzzy_threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error misses %q: %v", want, err)
		}
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Providers.STT.Name != "remote" {
		t.Errorf("stt = %q, want remote", cfg.Providers.STT.Name)
	}
	if len(cfg.Providers.STT.Fallbacks) != 1 {
		t.Errorf("stt fallbacks = %d, want 1", len(cfg.Providers.STT.Fallbacks))
	}
	if !cfg.Dispatch.FenceEnabled() {
		t.Error("fence disabled, want enabled")
	}
	if cfg.Wake.AckSentinel != "__wake_ack__" {
		t.Errorf("ack sentinel = %q", cfg.Wake.AckSentinel)
	}
}
