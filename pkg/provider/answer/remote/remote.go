// Package remote provides an answer.Provider that forwards queries to an
// answer service's POST /api/ask-text endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/komekshi/pkg/provider/answer"
)

const defaultPath = "/api/ask-text"

var _ answer.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithPath overrides the endpoint path. Defaults to "/api/ask-text".
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

// WithHTTPClient replaces the HTTP client. Defaults to a client with a 20 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements answer.Provider against a remote answer endpoint.
type Provider struct {
	baseURL    string
	path       string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider for the service at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("remote answer: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       defaultPath,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Ask posts {"text": text} and decodes the reply. A relative audio_url is
// resolved against the service's base URL so the page can fetch it.
func (p *Provider) Ask(ctx context.Context, text string) (answer.Reply, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return answer.Reply{}, fmt.Errorf("remote answer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(payload))
	if err != nil {
		return answer.Reply{}, fmt.Errorf("remote answer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return answer.Reply{}, fmt.Errorf("remote answer: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return answer.Reply{}, fmt.Errorf("remote answer: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var reply answer.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return answer.Reply{}, fmt.Errorf("remote answer: parse JSON response: %w", err)
	}
	if strings.HasPrefix(reply.AudioURL, "/") && !strings.HasPrefix(reply.AudioURL, "//") {
		reply.AudioURL = p.baseURL + reply.AudioURL
	}
	return reply, nil
}
