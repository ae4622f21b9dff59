package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/komekshi/pkg/provider/answer"
	"github.com/MrWong99/komekshi/pkg/provider/embeddings"
	"github.com/MrWong99/komekshi/pkg/provider/llm"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(e ProviderEntry) (T, error) {
	fn, ok := f.m[e.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return fn(e)
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to factories for every provider kind. It is
// safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	stt        factories[stt.Provider]
	answer     factories[answer.Provider]
	llm        factories[llm.Provider]
	embeddings factories[embeddings.Provider]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stt:        newFactories[stt.Provider]("stt"),
		answer:     newFactories[answer.Provider]("answer"),
		llm:        newFactories[llm.Provider]("llm"),
		embeddings: newFactories[embeddings.Provider]("embeddings"),
	}
}

// RegisterSTT registers an STT factory under name, replacing any previous one.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// RegisterAnswer registers an answer-service factory under name.
func (r *Registry) RegisterAnswer(name string, f Factory[answer.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answer.m[name] = f
}

// RegisterLLM registers an LLM factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = f
}

// RegisterEmbeddings registers an embeddings factory under name.
func (r *Registry) RegisterEmbeddings(name string, f Factory[embeddings.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings.m[name] = f
}

// CreateSTT builds the STT provider named by e.Name.
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(e)
}

// CreateAnswer builds the answer provider named by e.Name.
func (r *Registry) CreateAnswer(e ProviderEntry) (answer.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.answer.create(e)
}

// CreateLLM builds the LLM provider named by e.Name.
func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(e)
}

// CreateEmbeddings builds the embeddings provider named by e.Name.
func (r *Registry) CreateEmbeddings(e ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embeddings.create(e)
}

// Names returns the registered names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"stt":        r.stt.names(),
		"answer":     r.answer.names(),
		"llm":        r.llm.names(),
		"embeddings": r.embeddings.names(),
	}
}
