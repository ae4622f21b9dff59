// Package web serves the browser front end and the HTTP API: the capture
// websocket, the transcription and answer endpoints, the dialogue history,
// health probes and Prometheus metrics.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/komekshi/internal/assistant"
	"github.com/MrWong99/komekshi/internal/health"
	"github.com/MrWong99/komekshi/internal/history"
	"github.com/MrWong99/komekshi/internal/observe"
	"github.com/MrWong99/komekshi/pkg/provider/answer"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

//go:embed assets
var assets embed.FS

// Defaults for [Config].
const (
	DefaultMaxUpload       = 25 << 20
	DefaultMaxFrame        = 1 << 20
	DefaultHistoryLimit    = 50
	DefaultShutdownTimeout = 15 * time.Second
)

// Config tunes the HTTP surface.
type Config struct {
	// StaticDir is served under /static/. Answer audio lives here.
	StaticDir string

	// OriginPatterns lists the hosts allowed to open the capture websocket
	// from another origin. Same-origin requests are always allowed.
	OriginPatterns []string

	// MaxUpload caps the body of /api/transcribe.
	MaxUpload int64

	// MaxFrame caps a single websocket message.
	MaxFrame int64

	// TranscribeTimeout bounds a /api/transcribe call.
	TranscribeTimeout time.Duration

	// AskTimeout bounds a /api/ask-text call.
	AskTimeout time.Duration

	// CertFile and KeyFile enable HTTPS when both are set.
	CertFile string
	KeyFile  string
}

func (c Config) withDefaults() Config {
	if c.StaticDir == "" {
		c.StaticDir = "static"
	}
	if c.MaxUpload <= 0 {
		c.MaxUpload = DefaultMaxUpload
	}
	if c.MaxFrame <= 0 {
		c.MaxFrame = DefaultMaxFrame
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = assistant.DefaultTranscribeTimeout
	}
	if c.AskTimeout <= 0 {
		c.AskTimeout = 20 * time.Second
	}
	return c
}

// Deps holds the services behind the HTTP surface. Nil fields disable the
// endpoints that need them.
type Deps struct {
	Sessions *assistant.Manager
	STT      stt.Provider
	Answers  answer.Provider
	History  history.Store
	Health   *health.Handler
	Metrics  *observe.Metrics
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	deps    Deps
	handler http.Handler
}

// New creates a Server and registers every route.
func New(cfg Config, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	s := &Server{cfg: cfg.withDefaults(), deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/ask-text", s.handleAskText)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.Handle("GET /metrics", promhttp.Handler())
	if deps.Health != nil {
		deps.Health.Register(mux)
	}

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	sub, _ := fs.Sub(assets, "assets")
	mux.Handle("GET /", http.FileServerFS(sub))

	s.handler = observe.Middleware(deps.Metrics)(mux)
	return s
}

// Handler returns the root handler with tracing, metrics and request logs.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within DefaultShutdownTimeout. Websocket sessions see their
// request context cancelled and wind down on their own.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is like ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			slog.Info("web: listening", "addr", ln.Addr().String(), "tls", true)
			errCh <- srv.ServeTLS(ln, s.cfg.CertFile, s.cfg.KeyFile)
			return
		}
		slog.Info("web: listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
