// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. Each recording gets its own streaming session: the
// audio is sent, the stream is closed and the final results are joined into
// one transcript. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "multi"
	defaultTimeout   = 30 * time.Second

	// chunkSize is the largest binary message sent per write, about 256 ms
	// of 16 kHz mono PCM.
	chunkSize = 8 << 10
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "kk",
// "ru"). Defaults to "multi".
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithKeyterms boosts recognition of the given terms, typically the wake
// word and its variants.
func WithKeyterms(terms ...string) Option {
	return func(p *Provider) {
		p.keyterms = append(p.keyterms, terms...)
	}
}

// WithEndpoint overrides the streaming endpoint, e.g. for a self-hosted
// deployment. http and https URLs are accepted as well as ws and wss.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient sets the client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTimeout bounds one whole streaming session. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	keyterms   []string
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// streamFormat describes raw PCM sent to Deepgram. The zero value means the
// payload is a container Deepgram detects on its own.
type streamFormat struct {
	sampleRate int
	channels   int
}

// payloadFor unwraps WAV recordings to linear16 PCM. Other containers are
// streamed as they are.
func payloadFor(rec audio.Recording) ([]byte, streamFormat) {
	if rec.MIMEType == audio.MIMEWAV {
		if pcm, rate, ch, err := audio.DecodeWAV(rec.Data); err == nil {
			return pcm, streamFormat{sampleRate: rate, channels: ch}
		}
	}
	return rec.Data, streamFormat{}
}

// Transcribe opens a streaming session, sends rec, closes the stream and
// collects the final results until Deepgram closes the connection.
func (p *Provider) Transcribe(ctx context.Context, rec audio.Recording, opts stt.Options) (stt.Transcript, error) {
	payload, format := payloadFor(rec)
	wsURL, err := p.buildURL(opts, format)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
		HTTPClient: p.httpClient,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	var res results
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writeRecording(gctx, conn, payload) })
	g.Go(func() error { return readResults(gctx, conn, &res) })
	if err := g.Wait(); err != nil {
		return stt.Transcript{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "")

	tr := res.transcript()
	if tr.Duration == 0 {
		tr.Duration = rec.Duration
	}
	return tr, nil
}

// writeRecording sends payload in binary chunks and then asks Deepgram to
// flush and close the stream.
func writeRecording(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	for len(payload) > 0 {
		n := min(len(payload), chunkSize)
		if err := conn.Write(ctx, websocket.MessageBinary, payload[:n]); err != nil {
			return fmt.Errorf("deepgram: send audio: %w", err)
		}
		payload = payload[n:]
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// readResults collects messages until the server closes the connection.
func readResults(ctx context.Context, conn *websocket.Conn, res *results) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("deepgram: read: %w", err)
		}
		if err := res.add(msg); err != nil {
			return err
		}
	}
}

// buildURL constructs the Deepgram streaming endpoint URL for the given
// options and payload format.
func (p *Provider) buildURL(opts stt.Options, format streamFormat) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if format.sampleRate > 0 {
		q.Set("encoding", "linear16")
		q.Set("sample_rate", strconv.Itoa(format.sampleRate))
		if format.channels > 0 {
			q.Set("channels", strconv.Itoa(format.channels))
		}
	}
	for _, kt := range p.keyterms {
		q.Add("keyterm", kt)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- results ----

// deepgramMessage is the subset of the streaming messages we read: Results
// events and the closing Metadata event.
type deepgramMessage struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Confidence float64  `json:"confidence"`
			Languages  []string `json:"languages"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

// results accumulates the final segments of one session.
type results struct {
	texts      []string
	confidence float64
	finals     int
	language   string
	duration   time.Duration
}

// add applies one server message. Interim results are ignored; an Error
// message fails the session.
func (r *results) add(data []byte) error {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("deepgram: parse message: %w", err)
	}
	switch msg.Type {
	case "Results":
		if !msg.IsFinal {
			return nil
		}
		if end := secs(msg.Start + msg.Duration); end > r.duration {
			r.duration = end
		}
		if len(msg.Channel.Alternatives) == 0 {
			return nil
		}
		alt := msg.Channel.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			r.texts = append(r.texts, text)
			r.confidence += alt.Confidence
			r.finals++
		}
		if r.language == "" && len(alt.Languages) > 0 {
			r.language = alt.Languages[0]
		}
	case "Metadata":
		if d := secs(msg.Duration); d > 0 {
			r.duration = d
		}
	case "Error":
		return fmt.Errorf("deepgram: server error: %s", msg.Description)
	}
	return nil
}

// transcript joins the collected finals. The confidence is their mean.
func (r *results) transcript() stt.Transcript {
	tr := stt.Transcript{
		Text:     strings.Join(r.texts, " "),
		Language: r.language,
		Duration: r.duration,
	}
	if r.finals > 0 {
		tr.Confidence = r.confidence / float64(r.finals)
	}
	return tr
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
