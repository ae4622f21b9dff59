package deepgram

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Options{}, streamFormat{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "scheme", "wss", u.Scheme)
	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "multi", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	if _, ok := q["encoding"]; ok {
		t.Error("expected no 'encoding' param for container audio")
	}
	if _, ok := q["keyterm"]; ok {
		t.Error("expected no 'keyterm' param when none provided")
	}
}

func TestBuildURL_OptionsAndOverride(t *testing.T) {
	p, err := New("key", WithModel("nova-2"), WithLanguage("ru"), WithKeyterms("көмекші", "Hurliman"),
		WithEndpoint("https://dg.example.com/v1/listen"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Options{Language: "kk"}, streamFormat{sampleRate: 16000, channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "scheme", "wss", u.Scheme)
	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "kk", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	if got := q["keyterm"]; !slices.Equal(got, []string{"көмекші", "Hurliman"}) {
		t.Errorf("keyterm = %v", got)
	}
}

// ---- message handling ----

func TestResults_JoinsFinals(t *testing.T) {
	var r results
	msgs := []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"көм"}]}}`,
		`{"type":"Results","is_final":true,"start":0,"duration":0.8,"channel":{"alternatives":[{"transcript":" көмекші ","confidence":0.9,"languages":["kk"]}]}}`,
		`{"type":"Results","is_final":true,"start":0.8,"duration":0.7,"channel":{"alternatives":[{"transcript":"ауа райы","confidence":0.7}]}}`,
		`{"type":"Results","is_final":true,"start":1.5,"duration":0.2,"channel":{"alternatives":[{"transcript":""}]}}`,
		`{"type":"SpeechStarted"}`,
	}
	for _, m := range msgs {
		if err := r.add([]byte(m)); err != nil {
			t.Fatalf("add(%s): %v", m, err)
		}
	}

	tr := r.transcript()
	assertEqual(t, "text", "көмекші ауа райы", tr.Text)
	assertEqual(t, "language", "kk", tr.Language)
	if tr.Confidence < 0.799 || tr.Confidence > 0.801 {
		t.Errorf("confidence = %f, want mean 0.8", tr.Confidence)
	}
	if tr.Duration != 1700*time.Millisecond {
		t.Errorf("duration = %v, want 1.7s", tr.Duration)
	}
}

func TestResults_MetadataDuration(t *testing.T) {
	var r results
	if err := r.add([]byte(`{"type":"Metadata","duration":2.5}`)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := r.transcript(); got.Duration != 2500*time.Millisecond || got.Text != "" {
		t.Errorf("transcript = %+v, want empty text and 2.5s", got)
	}
}

func TestResults_Errors(t *testing.T) {
	tests := map[string]string{
		"invalid json": `{invalid`,
		"server error": `{"type":"Error","description":"bad audio"}`,
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			var r results
			if err := r.add([]byte(msg)); err == nil {
				t.Errorf("add(%s): expected error", msg)
			}
		})
	}
}

// ---- Transcribe against a fake streaming server ----

// fakeDeepgram accepts one streaming session, records what it receives and
// replies with the given messages once the client closes the stream.
type fakeDeepgram struct {
	replies []string

	mu          sync.Mutex
	auth        string
	query       url.Values
	received    bytes.Buffer
	closeStream bool
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")
	f.query = r.URL.Query()
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageBinary {
			f.received.Write(data)
			continue
		}
		if strings.Contains(string(data), "CloseStream") {
			f.closeStream = true
			break
		}
	}
	for _, m := range f.replies {
		if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestTranscribe_StreamsPCM(t *testing.T) {
	fake := &fakeDeepgram{replies: []string{
		`{"type":"Results","is_final":true,"start":0,"duration":1,"channel":{"alternatives":[{"transcript":"көмекші сәлем","confidence":0.92}]}}`,
		`{"type":"Metadata","duration":1.25}`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	pcm := bytes.Repeat([]byte{1, 2}, 10000) // spans several chunks
	rec := audio.Recording{
		Data:     audio.EncodeWAV(pcm, 16000, 1),
		MIMEType: audio.MIMEWAV,
		Duration: time.Second,
	}

	p, _ := New("key", WithEndpoint(srv.URL+"/v1/listen"))
	tr, err := p.Transcribe(context.Background(), rec, stt.Options{Language: "kk"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assertEqual(t, "text", "көмекші сәлем", tr.Text)
	assertEqual(t, "auth", "Token key", fake.auth)
	assertEqual(t, "encoding", "linear16", fake.query.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", fake.query.Get("sample_rate"))
	assertEqual(t, "language", "kk", fake.query.Get("language"))
	if !bytes.Equal(fake.received.Bytes(), pcm) {
		t.Errorf("server received %d bytes, want the %d PCM bytes without the WAV header", fake.received.Len(), len(pcm))
	}
	if !fake.closeStream {
		t.Error("CloseStream was not sent")
	}
	if tr.Duration != 1250*time.Millisecond {
		t.Errorf("duration = %v, want 1.25s from metadata", tr.Duration)
	}
}

func TestTranscribe_ContainerPassesThrough(t *testing.T) {
	fake := &fakeDeepgram{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p, _ := New("key", WithEndpoint(srv.URL))
	rec := audio.Recording{Data: []byte("webm-bytes"), MIMEType: audio.MIMEWebM, Duration: 2 * time.Second}
	tr, err := p.Transcribe(context.Background(), rec, stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assertEqual(t, "text", "", tr.Text)
	assertEqual(t, "body", "webm-bytes", fake.received.String())
	if _, ok := fake.query["encoding"]; ok {
		t.Error("encoding must not be set for container audio")
	}
	if tr.Duration != 2*time.Second {
		t.Errorf("duration = %v, want fallback to recording duration", tr.Duration)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	fake := &fakeDeepgram{replies: []string{`{"type":"Error","description":"unsupported encoding"}`}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p, _ := New("key", WithEndpoint(srv.URL))
	if _, err := p.Transcribe(context.Background(), audio.Recording{Data: []byte("x")}, stt.Options{}); err == nil {
		t.Fatal("expected error for Error message")
	}
}

func TestTranscribe_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("key", WithEndpoint(srv.URL))
	if _, err := p.Transcribe(context.Background(), audio.Recording{Data: []byte("x")}, stt.Options{}); err == nil {
		t.Fatal("expected error for HTTP 401 handshake")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
