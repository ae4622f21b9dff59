// Package instrument wraps providers so every call is counted, timed and
// traced through internal/observe.
package instrument

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/komekshi/internal/observe"
	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/answer"
	"github.com/MrWong99/komekshi/pkg/provider/embeddings"
	"github.com/MrWong99/komekshi/pkg/provider/llm"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

// Provider kinds used as the "kind" metric attribute.
const (
	KindSTT        = "stt"
	KindAnswer     = "answer"
	KindLLM        = "llm"
	KindEmbeddings = "embeddings"
)

// call is the bookkeeping shared by every wrapper.
type call struct {
	m     *observe.Metrics
	name  string
	kind  string
	hist  metric.Float64Histogram
	start time.Time
	span  trace.Span
}

func begin(ctx context.Context, m *observe.Metrics, name, kind string, hist metric.Float64Histogram) (context.Context, *call) {
	ctx, span := observe.StartSpan(ctx, kind+"."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(observe.Attr("provider", name)),
	)
	return ctx, &call{m: m, name: name, kind: kind, hist: hist, start: time.Now(), span: span}
}

func (c *call) end(ctx context.Context, err error) {
	defer c.span.End()
	if c.hist != nil {
		c.hist.Record(ctx, time.Since(c.start).Seconds(), metric.WithAttributes(observe.Attr("provider", c.name)))
	}
	status := "ok"
	if err != nil {
		status = "error"
		c.m.RecordProviderError(ctx, c.name, c.kind)
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	c.m.RecordProviderRequest(ctx, c.name, c.kind, status)
}

func metricsOr(m *observe.Metrics) *observe.Metrics {
	if m == nil {
		return observe.DefaultMetrics()
	}
	return m
}

// ─── STT ──────────────────────────────────────────────────────────────────────

// STT counts recogniser calls. Latency is recorded by the capture session.
type STT struct {
	next stt.Provider
	name string
	m    *observe.Metrics
}

var _ stt.Provider = (*STT)(nil)

// WrapSTT instruments p under name.
func WrapSTT(p stt.Provider, name string, m *observe.Metrics) *STT {
	return &STT{next: p, name: name, m: metricsOr(m)}
}

// Transcribe implements stt.Provider.
func (w *STT) Transcribe(ctx context.Context, rec audio.Recording, opts stt.Options) (stt.Transcript, error) {
	ctx, c := begin(ctx, w.m, w.name, KindSTT, nil)
	c.span.SetAttributes(observe.Attr("mime", rec.MIMEType))
	tr, err := w.next.Transcribe(ctx, rec, opts)
	c.end(ctx, err)
	return tr, err
}

// ─── Answer ───────────────────────────────────────────────────────────────────

// Answer counts answer calls and the stage that matched.
type Answer struct {
	next answer.Provider
	name string
	m    *observe.Metrics
}

var _ answer.Provider = (*Answer)(nil)

// WrapAnswer instruments p under name.
func WrapAnswer(p answer.Provider, name string, m *observe.Metrics) *Answer {
	return &Answer{next: p, name: name, m: metricsOr(m)}
}

// Ask implements answer.Provider.
func (w *Answer) Ask(ctx context.Context, text string) (answer.Reply, error) {
	ctx, c := begin(ctx, w.m, w.name, KindAnswer, nil)
	reply, err := w.next.Ask(ctx, text)
	if err == nil && reply.MatchedBy != "" {
		w.m.RecordAnswerMatch(ctx, reply.MatchedBy)
		c.span.SetAttributes(observe.Attr("matched_by", reply.MatchedBy), observe.Attr("matched_tag", reply.MatchedTag))
	}
	c.end(ctx, err)
	return reply, err
}

// ─── LLM ──────────────────────────────────────────────────────────────────────

// LLM counts and times completions.
type LLM struct {
	next llm.Provider
	name string
	m    *observe.Metrics
}

var _ llm.Provider = (*LLM)(nil)

// WrapLLM instruments p under name.
func WrapLLM(p llm.Provider, name string, m *observe.Metrics) *LLM {
	return &LLM{next: p, name: name, m: metricsOr(m)}
}

// Complete implements llm.Provider.
func (w *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, c := begin(ctx, w.m, w.name, KindLLM, w.m.LLMDuration)
	resp, err := w.next.Complete(ctx, req)
	c.end(ctx, err)
	return resp, err
}

// Model implements llm.Provider.
func (w *LLM) Model() string { return w.next.Model() }

// ─── Embeddings ───────────────────────────────────────────────────────────────

// Embeddings counts and times embedding calls.
type Embeddings struct {
	next embeddings.Provider
	name string
	m    *observe.Metrics
}

var _ embeddings.Provider = (*Embeddings)(nil)

// WrapEmbeddings instruments p under name.
func WrapEmbeddings(p embeddings.Provider, name string, m *observe.Metrics) *Embeddings {
	return &Embeddings{next: p, name: name, m: metricsOr(m)}
}

// Embed implements embeddings.Provider.
func (w *Embeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, c := begin(ctx, w.m, w.name, KindEmbeddings, w.m.EmbedDuration)
	v, err := w.next.Embed(ctx, text)
	c.end(ctx, err)
	return v, err
}

// EmbedBatch implements embeddings.Provider.
func (w *Embeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, c := begin(ctx, w.m, w.name, KindEmbeddings, w.m.EmbedDuration)
	c.span.SetAttributes(attribute.Int("batch", len(texts)))
	v, err := w.next.EmbedBatch(ctx, texts)
	c.end(ctx, err)
	return v, err
}

// Dimensions implements embeddings.Provider.
func (w *Embeddings) Dimensions() int { return w.next.Dimensions() }

// ModelID implements embeddings.Provider.
func (w *Embeddings) ModelID() string { return w.next.ModelID() }
