package openai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
	"github.com/MrWong99/komekshi/pkg/provider/stt/openai"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()
	p, err := openai.New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != openai.DefaultModel {
		t.Errorf("ModelID() = %q, want %q", p.ModelID(), openai.DefaultModel)
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var (
		gotPath, gotModel, gotLang, gotPrompt, gotName string
		gotData                                       []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		gotPrompt = r.FormValue("prompt")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotName = hdr.Filename
		gotData, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" көмекші уақыт "}`))
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithLanguage("kk"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := audio.Recording{Data: audio.EncodeWAV(make([]byte, 64), 16000, 1), MIMEType: audio.MIMEWAV}
	tr, err := p.Transcribe(context.Background(), rec, stt.Options{Prompt: "көмекші"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if tr.Text != "көмекші уақыт" {
		t.Errorf("Text = %q", tr.Text)
	}
	if gotPath != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotModel != "whisper-1" || gotLang != "kk" || gotPrompt != "көмекші" {
		t.Errorf("fields model=%q language=%q prompt=%q", gotModel, gotLang, gotPrompt)
	}
	if gotName != "chunk.wav" {
		t.Errorf("filename = %q, want chunk.wav", gotName)
	}
	if string(gotData) != string(rec.Data) {
		t.Error("audio bytes were altered in transit")
	}
}

func TestTranscribe_EmptyRecording(t *testing.T) {
	t.Parallel()
	p, _ := openai.New("sk-test", "")
	if _, err := p.Transcribe(context.Background(), audio.Recording{}, stt.Options{}); err == nil {
		t.Fatal("expected error for empty recording")
	}
}
