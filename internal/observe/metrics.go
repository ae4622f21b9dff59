// Package observe provides application-wide observability primitives for
// Komekshi: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Komekshi metrics.
const meterName = "github.com/MrWong99/komekshi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks utterance transcription latency.
	STTDuration metric.Float64Histogram

	// AnswerDuration tracks answer service latency per dispatched query.
	AnswerDuration metric.Float64Histogram

	// LLMDuration tracks answer-tag classification latency.
	LLMDuration metric.Float64Histogram

	// EmbedDuration tracks embedding latency of the semantic stage.
	EmbedDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Utterances counts segmenter output by fate. Use with attribute:
	//   attribute.String("outcome", ...)
	Utterances metric.Int64Counter

	// WakeDecisions counts gate decisions. Use with attribute:
	//   attribute.String("kind", ...)
	WakeDecisions metric.Int64Counter

	// Dispatches counts finished dialogue requests. Use with attribute:
	//   attribute.String("outcome", ...)
	Dispatches metric.Int64Counter

	// AnswerMatches counts answer-service replies by matching stage. Use with
	// attribute: attribute.String("matched_by", ...)
	AnswerMatches metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live capture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// recogniser and answer latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "komekshi.stt.duration", "Latency of utterance transcription."},
		{&met.AnswerDuration, "komekshi.answer.duration", "Latency of the answer service per query."},
		{&met.LLMDuration, "komekshi.llm.duration", "Latency of answer-tag classification."},
		{&met.EmbedDuration, "komekshi.embed.duration", "Latency of query embedding."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "komekshi.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.Utterances, "komekshi.utterances", "Segmented utterances by outcome."},
		{&met.WakeDecisions, "komekshi.wake.decisions", "Wake gate decisions by kind."},
		{&met.Dispatches, "komekshi.dispatches", "Finished dialogue requests by outcome."},
		{&met.AnswerMatches, "komekshi.answer.matches", "Answer replies by matching stage."},
		{&met.ProviderErrors, "komekshi.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("komekshi.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("komekshi.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordUtterance counts one utterance with the given outcome
// (e.g. "emitted", "discarded", "dropped", "empty", "failed").
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordWakeDecision counts one gate decision.
func (m *Metrics) RecordWakeDecision(ctx context.Context, kind string) {
	m.WakeDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDispatch counts one finished dialogue request.
func (m *Metrics) RecordDispatch(ctx context.Context, outcome string) {
	m.Dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAnswerMatch counts one answer reply by the stage that produced it.
func (m *Metrics) RecordAnswerMatch(ctx context.Context, matchedBy string) {
	m.AnswerMatches.Add(ctx, 1, metric.WithAttributes(attribute.String("matched_by", matchedBy)))
}
