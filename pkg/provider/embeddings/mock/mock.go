// Package mock provides a test double for the embeddings.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Vectors:         map[string][]float32{"ауа райы": {1, 0}},
//	    DimensionsValue: 2,
//	}
//	vec, _ := p.Embed(ctx, "ауа райы")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/komekshi/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
//
// Lookup order for a text: Vectors[text], then EmbedResult. Unknown texts
// without an EmbedResult get a zero vector of DimensionsValue length.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to the vector returned for it.
	Vectors map[string][]float32

	// EmbedResult is returned for texts missing from Vectors.
	EmbedResult []float32

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records the text of every Embed call in order.
	EmbedCalls []string

	// EmbedBatchCalls records a copy of every EmbedBatch input in order.
	EmbedBatchCalls [][]string
}

// Embed records the call and returns the vector for text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.lookup(text), nil
}

// EmbedBatch records the call and returns one vector per text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, append([]string(nil), texts...))
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.lookup(t)
	}
	return out, nil
}

func (p *Provider) lookup(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return v
	}
	if p.EmbedResult != nil {
		return p.EmbedResult
	}
	return make([]float32, p.DimensionsValue)
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}

var _ embeddings.Provider = (*Provider)(nil)
