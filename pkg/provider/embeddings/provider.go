// Package embeddings defines the Provider interface for vector embedding backends.
//
// Komekshi embeds the keys of the answer index once at start-up and the
// incoming query on demand, so an utterance that shares no words with any key
// can still land on the closest answer.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"math"
)

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by one Provider share the length reported by
// Dimensions. Vectors from different providers must not be compared.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for texts in one call. The i-th
	// result corresponds to texts[i]. On error the whole result is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector.
	Dimensions() int

	// ModelID returns the provider-specific model identifier.
	ModelID() string
}

// CosineDistance returns 1 - cos(a, b). Vectors of different length or with
// zero magnitude have distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
