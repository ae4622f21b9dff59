// Package assistant runs one capture session: the tick loop that drives the
// energy meter and the segmenter, the ordered transcription worker, the wake
// gate and the dialogue dispatcher, all rendering into one [present.Sink].
package assistant

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/komekshi/internal/dispatch"
	"github.com/MrWong99/komekshi/internal/history"
	"github.com/MrWong99/komekshi/internal/observe"
	"github.com/MrWong99/komekshi/internal/present"
	"github.com/MrWong99/komekshi/internal/segment"
	"github.com/MrWong99/komekshi/internal/wake"
	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/answer"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

// Defaults for [Config].
const (
	DefaultTranscribeQueue   = 4
	DefaultTranscribeTimeout = 30 * time.Second
)

// Config holds the per-session tuning. Zero fields take their package
// defaults.
type Config struct {
	Segment  segment.Config
	Meter    audio.Meter
	Wake     wake.Rules
	Dispatch dispatch.Config
	Messages present.Messages

	// STT carries the recognition hints sent with every utterance.
	STT stt.Options

	// TranscribeQueue is the number of finished utterances that may wait for
	// the transcription worker before new ones are dropped.
	TranscribeQueue int

	// TranscribeTimeout bounds each transcription call.
	TranscribeTimeout time.Duration
}

// DefaultConfig returns the stock session configuration.
func DefaultConfig() Config {
	return Config{
		Segment:           segment.DefaultConfig(),
		Meter:             audio.DefaultMeter(),
		Wake:              wake.DefaultRules(),
		Dispatch:          dispatch.DefaultConfig(),
		Messages:          present.DefaultMessages(),
		TranscribeQueue:   DefaultTranscribeQueue,
		TranscribeTimeout: DefaultTranscribeTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Meter == (audio.Meter{}) {
		c.Meter = audio.DefaultMeter()
	}
	if c.Wake.Table.Len() == 0 {
		c.Wake.Table = wake.DefaultTable()
	}
	if c.TranscribeQueue <= 0 {
		c.TranscribeQueue = DefaultTranscribeQueue
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = DefaultTranscribeTimeout
	}
	c.Messages = c.Messages.WithDefaults()
	return c
}

// Option is a functional option for [NewSession].
type Option func(*Session)

// WithRecorder records every finished request in the dialogue history.
func WithRecorder(r *history.Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithLogger sets the base logger. The session adds its id.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithGateOptions passes options to the session's wake gate.
func WithGateOptions(opts ...wake.GateOption) Option {
	return func(s *Session) {
		s.gateOpts = append(s.gateOpts, opts...)
	}
}

// WithOnDone registers an extra completion hook on the session's dispatcher.
func WithOnDone(fn func(dispatch.Result)) Option {
	return func(s *Session) {
		s.onDone = append(s.onDone, fn)
	}
}

// Session is one capture session. Run drives it; SetSpeaking may be called
// from any goroutine.
type Session struct {
	id   string
	cfg  Config
	stt  stt.Provider
	sink present.Sink

	gate *wake.Gate
	disp *dispatch.Dispatcher
	seg  *segment.Segmenter

	recorder *history.Recorder
	metrics  *observe.Metrics
	log      *slog.Logger
	gateOpts []wake.GateOption
	onDone   []func(dispatch.Result)

	utterances chan segment.Utterance

	speaking   atomic.Bool
	stateDirty atomic.Bool
	lastState  present.State // tick goroutine only

	mu          sync.Mutex
	transcripts map[uint64]string
}

// NewSession creates a session that recognises utterances with recogniser,
// answers queries with answers and renders into sink.
func NewSession(id string, cfg Config, recogniser stt.Provider, answers answer.Provider, sink present.Sink, opts ...Option) *Session {
	s := &Session{
		id:          id,
		cfg:         cfg.withDefaults(),
		stt:         recogniser,
		sink:        sink,
		log:         slog.Default(),
		transcripts: make(map[uint64]string),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.log = s.log.With("session", id)

	s.gate = wake.NewGate(s.cfg.Wake, s.gateOpts...)
	s.seg = segment.New(s.cfg.Segment)
	s.utterances = make(chan segment.Utterance, s.cfg.TranscribeQueue)

	dopts := []dispatch.Option{
		dispatch.WithConfig(s.cfg.Dispatch),
		dispatch.WithMessages(s.cfg.Messages),
		dispatch.WithLogger(s.log),
		dispatch.WithOnDone(s.complete),
	}
	for _, fn := range s.onDone {
		dopts = append(dopts, dispatch.WithOnDone(fn))
	}
	s.disp = dispatch.New(answers, sink, dopts...)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Gate returns the session's wake gate.
func (s *Session) Gate() *wake.Gate { return s.gate }

// Dispatcher returns the session's dialogue dispatcher.
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.disp }

// SetSpeaking records whether the page is playing a reply. While speaking,
// the tick loop does not overwrite the visual state.
func (s *Session) SetSpeaking(v bool) {
	if s.speaking.Swap(v) == v {
		return
	}
	s.stateDirty.Store(true)
	if v {
		s.sink.State(present.StateSpeaking)
	}
}

// HandlePlayback applies a playback notification from the page.
func (s *Session) HandlePlayback(ev audio.EventType) {
	switch ev {
	case audio.EventPlaybackStarted:
		s.SetSpeaking(true)
	case audio.EventPlaybackEnded:
		s.SetSpeaking(false)
	}
}

// Run drives the session until ticks is closed or ctx is cancelled. A
// recording in progress is flushed and every finished utterance is
// transcribed before Run returns; requests still queued at that point
// complete as rejected.
func (s *Session) Run(ctx context.Context, ticks <-chan Tick) error {
	dctx, dcancel := context.WithCancel(ctx)
	defer dcancel()

	var dg errgroup.Group
	dg.Go(func() error { return s.disp.Run(dctx) })

	var wg errgroup.Group
	wg.Go(func() error {
		for u := range s.utterances {
			s.transcribe(ctx, u)
		}
		return nil
	})

	s.sink.Status(s.cfg.Messages.Listening)
	s.log.Info("assistant: session started")

	s.tickLoop(ctx, ticks)

	close(s.utterances)
	_ = wg.Wait()
	dcancel()
	err := dg.Wait()
	s.log.Info("assistant: session ended", "discarded", s.seg.Discarded())
	return err
}

func (s *Session) tickLoop(ctx context.Context, ticks <-chan Tick) {
	var last time.Duration
	for {
		select {
		case <-ctx.Done():
			s.flush(last)
			return
		case t, ok := <-ticks:
			if !ok {
				s.flush(last)
				return
			}
			last = t.At
			s.tick(ctx, t)
		}
	}
}

// tick runs the meter and the segmenter for one frame.
func (s *Session) tick(ctx context.Context, t Tick) {
	energy := audio.RMSPCM16(t.Frame.Data)
	s.sink.Level(s.cfg.Meter.Level(energy))

	if s.stateDirty.Swap(false) {
		s.lastState = ""
	}
	if !s.speaking.Load() {
		st := present.StateIdle
		if energy > s.seg.Config().Threshold {
			st = present.StateListening
		}
		if st != s.lastState {
			s.sink.State(st)
			s.lastState = st
		}
	}

	discarded := s.seg.Discarded()
	u, ok := s.seg.Push(segment.Tick{At: t.At, Energy: energy}, t.Frame)
	if s.seg.Discarded() > discarded {
		s.metrics.RecordUtterance(ctx, "discarded")
	}
	if ok {
		s.handoff(ctx, u)
	}
}

func (s *Session) flush(at time.Duration) {
	if u, ok := s.seg.Flush(at); ok {
		s.handoff(context.Background(), u)
	}
}

// handoff passes u to the transcription worker without blocking the tick
// loop.
func (s *Session) handoff(ctx context.Context, u segment.Utterance) {
	select {
	case s.utterances <- u:
		s.metrics.RecordUtterance(ctx, "emitted")
	default:
		s.metrics.RecordUtterance(ctx, "dropped")
		s.log.Warn("assistant: transcription queue full, dropping utterance", "utterance", u.Seq, "bytes", u.Recording.Len())
		s.sink.Status(s.cfg.Messages.Busy)
	}
}

// transcribe recognises one utterance and feeds the text through the gate.
func (s *Session) transcribe(ctx context.Context, u segment.Utterance) {
	tctx, cancel := context.WithTimeout(ctx, s.cfg.TranscribeTimeout)
	start := time.Now()
	tr, err := s.stt.Transcribe(tctx, u.Recording, s.cfg.STT)
	cancel()
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordUtterance(ctx, "failed")
		s.log.Warn("assistant: transcription failed", "utterance", u.Seq, "err", err)
		s.sink.Status(s.cfg.Messages.TranscribeError)
		return
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		s.metrics.RecordUtterance(ctx, "empty")
		return
	}
	s.sink.Transcript(text)
	s.Feed(text)
}

// Feed runs recognised text through the wake gate and dispatches the
// resulting query, if any. It returns the gate decision.
func (s *Session) Feed(text string) wake.Decision {
	d := s.gate.Handle(text)
	s.metrics.RecordWakeDecision(context.Background(), d.Kind.String())
	s.log.Debug("assistant: gate decision", "kind", d.Kind, "seq", d.Seq, "trigger", d.Trigger, "ack", d.Ack)

	switch d.Kind {
	case wake.Dispatch:
		s.mu.Lock()
		s.transcripts[d.Seq] = text
		s.mu.Unlock()
		if _, err := s.disp.Submit(dispatch.Request{Seq: d.Seq, Query: d.Query, Ack: d.Ack}); err != nil {
			s.log.Warn("assistant: submit failed", "seq", d.Seq, "err", err)
		}
	case wake.Expired:
		s.sink.Status(s.cfg.Messages.Listening)
	}
	return d
}

// complete is the dispatcher hook: it closes the awake window when the most
// recent request ends and records the request.
func (s *Session) complete(res dispatch.Result) {
	seq := res.Request.Seq
	s.gate.Complete(seq)
	s.metrics.RecordDispatch(context.Background(), res.Outcome.String())
	if res.Outcome == dispatch.OutcomeRendered || res.Outcome == dispatch.OutcomeSuperseded {
		s.metrics.AnswerDuration.Record(context.Background(), res.Latency.Seconds())
	}

	s.mu.Lock()
	transcript := s.transcripts[seq]
	delete(s.transcripts, seq)
	s.mu.Unlock()

	if s.recorder == nil {
		return
	}
	e := history.Entry{
		Session:    s.id,
		Seq:        seq,
		Transcript: transcript,
		Query:      res.Request.Query,
		Ack:        res.Request.Ack,
		Tag:        res.Reply.MatchedTag,
		MatchedBy:  res.Reply.MatchedBy,
		AudioURL:   res.Reply.AudioURL,
		Outcome:    res.Outcome.String(),
		Latency:    res.Latency,
		At:         res.Request.Submitted,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	s.recorder.Record(e)
}
