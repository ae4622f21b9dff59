package resilience

import (
	"context"

	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/answer"
	"github.com/MrWong99/komekshi/pkg/provider/llm"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

// ─── STT ──────────────────────────────────────────────────────────────────────

// STTFallback is an [stt.Provider] that fails over between recognisers.
type STTFallback struct {
	*Group[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an STTFallback with primary tried first.
func NewSTTFallback(primaryName string, primary stt.Provider, cfg FallbackConfig) *STTFallback {
	return &STTFallback{Group: NewGroup(primaryName, primary, cfg)}
}

// Transcribe implements stt.Provider.
func (f *STTFallback) Transcribe(ctx context.Context, rec audio.Recording, opts stt.Options) (stt.Transcript, error) {
	return Call(ctx, f.Group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, rec, opts)
	})
}

// ─── LLM ──────────────────────────────────────────────────────────────────────

// LLMFallback is an [llm.Provider] that fails over between models.
type LLMFallback struct {
	*Group[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an LLMFallback with primary tried first.
func NewLLMFallback(primaryName string, primary llm.Provider, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{Group: NewGroup(primaryName, primary, cfg)}
}

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, f.Group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Model returns the primary's model; it does not take part in failover.
func (f *LLMFallback) Model() string { return f.Primary().Model() }

// ─── Answer ───────────────────────────────────────────────────────────────────

// AnswerFallback is an [answer.Provider] that fails over between answer
// services, typically a remote service backed by the local index.
type AnswerFallback struct {
	*Group[answer.Provider]
}

var _ answer.Provider = (*AnswerFallback)(nil)

// NewAnswerFallback creates an AnswerFallback with primary tried first.
func NewAnswerFallback(primaryName string, primary answer.Provider, cfg FallbackConfig) *AnswerFallback {
	return &AnswerFallback{Group: NewGroup(primaryName, primary, cfg)}
}

// Ask implements answer.Provider.
func (f *AnswerFallback) Ask(ctx context.Context, text string) (answer.Reply, error) {
	return Call(ctx, f.Group, func(ctx context.Context, p answer.Provider) (answer.Reply, error) {
		return p.Ask(ctx, text)
	})
}
