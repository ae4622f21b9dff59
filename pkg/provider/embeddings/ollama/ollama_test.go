package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/komekshi/pkg/provider/embeddings/ollama"
)

// embedServer answers /api/embed with the first len(input) vectors of
// responses and counts requests.
func embedServer(t *testing.T, wantModel string, responses [][]float32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Model != wantModel {
			t.Errorf("model: got %q, want %q", req.Model, wantModel)
		}
		out := responses
		if len(out) > len(req.Input) {
			out = out[:len(req.Input)]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": wantModel, "embeddings": out})
	}))
}

func TestNew_EmptyModel(t *testing.T) {
	t.Parallel()
	if _, err := ollama.New("", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestEmbed_Single(t *testing.T) {
	t.Parallel()
	srv := embedServer(t, "nomic-embed-text", [][]float32{{0.1, 0.2, 0.3}}, nil)
	defer srv.Close()

	p, err := ollama.New(srv.URL+"/", "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec, err := p.Embed(context.Background(), "ауа райы")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("vec = %v, want [0.1 0.2 0.3]", vec)
	}
}

func TestEmbedBatch(t *testing.T) {
	t.Parallel()
	srv := embedServer(t, "all-minilm", [][]float32{{1, 0}, {0, 1}}, nil)
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "all-minilm")
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 1 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	t.Parallel()
	srv := embedServer(t, "all-minilm", [][]float32{{1, 0}}, nil)
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "all-minilm")
	if _, err := p.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when server returns fewer vectors than inputs")
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := embedServer(t, "all-minilm", nil, &calls)
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "all-minilm")
	vecs, err := p.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request, got %d", calls.Load())
	}
}

func TestDimensions_KnownModels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"nomic-embed-text:latest", 768},
		{"mxbai-embed-large", 1024},
		{"bge-m3", 1024},
		{"all-minilm", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			p, _ := ollama.New("http://127.0.0.1:19999", tt.model)
			if got := p.Dimensions(); got != tt.want {
				t.Errorf("Dimensions() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDimensions_ProbeOnce(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := embedServer(t, "custom-embed", [][]float32{make([]float32, 512)}, &calls)
	defer srv.Close()

	p, _ := ollama.New(srv.URL, "custom-embed")
	for i := range 3 {
		if got := p.Dimensions(); got != 512 {
			t.Errorf("call %d: Dimensions() = %d, want 512", i, got)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 probe request, got %d", calls.Load())
	}
}

func TestDimensions_WithDimensionsOption(t *testing.T) {
	t.Parallel()
	p, _ := ollama.New("http://127.0.0.1:19999", "custom-model", ollama.WithDimensions(256))
	if got := p.Dimensions(); got != 256 {
		t.Errorf("Dimensions() = %d, want 256", got)
	}
}

func TestEmbed_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("not-json"))
		}},
		{"no embeddings", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"model":"m","embeddings":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			p, _ := ollama.New(srv.URL, "nomic-embed-text")
			if _, err := p.Embed(context.Background(), "hello"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEmbed_ContextCancelled(t *testing.T) {
	t.Parallel()
	stopCh := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-stopCh:
		}
	}))
	defer srv.Close()
	defer close(stopCh)

	p, _ := ollama.New(srv.URL, "nomic-embed-text")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := p.Embed(ctx, "hello"); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
