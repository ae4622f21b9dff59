// Package remote provides an STT provider that forwards utterances to another
// assistant backend's transcription endpoint (POST /api/transcribe).
//
// The endpoint takes a multipart form with a single "file" field and answers
// with {"text": "..."}. The uploaded filename carries the container type
// (chunk.webm, chunk.wav, …), which is how the receiving side picks a decoder.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

const defaultPath = "/api/transcribe"

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithPath overrides the endpoint path. Defaults to "/api/transcribe".
func WithPath(path string) Option {
	return func(p *Provider) {
		p.path = path
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a 30 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider against a remote transcription endpoint.
type Provider struct {
	baseURL    string
	path       string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider for the service at baseURL (e.g.,
// "http://localhost:8000").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("remote stt: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       defaultPath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads rec and returns the recognised text. Language and prompt
// hints are not part of the endpoint contract and are ignored.
func (p *Provider) Transcribe(ctx context.Context, rec audio.Recording, _ stt.Options) (stt.Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audio.FilenameForMIME(rec.MIMEType)))
	ct := rec.MIMEType
	if ct == "" {
		ct = "application/octet-stream"
	}
	hdr.Set("Content-Type", ct)

	fw, err := mw.CreatePart(hdr)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("remote stt: create form part: %w", err)
	}
	if _, err := fw.Write(rec.Data); err != nil {
		return stt.Transcript{}, fmt.Errorf("remote stt: write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("remote stt: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("remote stt: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("remote stt: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Transcript{}, fmt.Errorf("remote stt: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Transcript{}, fmt.Errorf("remote stt: parse JSON response: %w", err)
	}
	return stt.Transcript{Text: strings.TrimSpace(result.Text), Duration: rec.Duration}, nil
}
