package answer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/komekshi/pkg/provider/embeddings"
)

// DefaultSemanticThreshold is the largest cosine distance still accepted as
// a semantic match.
const DefaultSemanticThreshold = 0.35

// embedBatchSize caps the number of keys sent per EmbedBatch call.
const embedBatchSize = 64

// KeyVector is one embedded index key.
type KeyVector struct {
	Tag    string
	Key    string
	Vector []float32
}

// KeyHit is one nearest-neighbour result.
type KeyHit struct {
	Tag      string
	Key      string
	Distance float64
}

// KeyIndex stores embedded keys and answers nearest-neighbour queries by
// cosine distance. Implementations must be safe for concurrent use.
type KeyIndex interface {
	// Replace swaps the whole key set for model.
	Replace(ctx context.Context, model string, keys []KeyVector) error

	// Nearest returns up to k keys of model closest to vec, nearest first.
	Nearest(ctx context.Context, model string, vec []float32, k int) ([]KeyHit, error)
}

// Semantic matches queries against the embedded keys of an index.
type Semantic struct {
	emb       embeddings.Provider
	keys      KeyIndex
	threshold float64
}

// NewSemantic creates a Semantic matcher. threshold <= 0 means
// DefaultSemanticThreshold.
func NewSemantic(emb embeddings.Provider, keys KeyIndex, threshold float64) *Semantic {
	if threshold <= 0 {
		threshold = DefaultSemanticThreshold
	}
	return &Semantic{emb: emb, keys: keys, threshold: threshold}
}

// Build embeds every key of items and replaces the stored key set.
func (s *Semantic) Build(ctx context.Context, items []Item) error {
	var (
		texts []string
		tags  []string
	)
	for _, it := range items {
		for _, k := range it.Keys {
			texts = append(texts, k)
			tags = append(tags, it.Tag)
		}
	}

	vecs := make([]KeyVector, 0, len(texts))
	for chunk := range slices.Chunk(texts, embedBatchSize) {
		out, err := s.emb.EmbedBatch(ctx, chunk)
		if err != nil {
			return fmt.Errorf("answer: embed keys: %w", err)
		}
		if len(out) != len(chunk) {
			return fmt.Errorf("answer: embed keys: got %d vectors for %d keys", len(out), len(chunk))
		}
		for _, v := range out {
			n := len(vecs)
			vecs = append(vecs, KeyVector{Tag: tags[n], Key: texts[n], Vector: v})
		}
	}

	if err := s.keys.Replace(ctx, s.emb.ModelID(), vecs); err != nil {
		return fmt.Errorf("answer: store keys: %w", err)
	}
	return nil
}

// Match embeds query and returns the tag of the nearest key when its
// distance is within the threshold.
func (s *Semantic) Match(ctx context.Context, query string) (KeyHit, bool, error) {
	vec, err := s.emb.Embed(ctx, query)
	if err != nil {
		return KeyHit{}, false, fmt.Errorf("answer: embed query: %w", err)
	}
	hits, err := s.keys.Nearest(ctx, s.emb.ModelID(), vec, 1)
	if err != nil {
		return KeyHit{}, false, fmt.Errorf("answer: nearest key: %w", err)
	}
	if len(hits) == 0 || hits[0].Distance > s.threshold {
		return KeyHit{}, false, nil
	}
	return hits[0], true, nil
}

// ─── In-memory key index ──────────────────────────────────────────────────────

// MemoryKeyIndex is a brute-force [KeyIndex] held in memory. It is the
// default when no database is configured; index sizes are small.
type MemoryKeyIndex struct {
	mu   sync.RWMutex
	sets map[string][]KeyVector
}

// NewMemoryKeyIndex creates an empty MemoryKeyIndex.
func NewMemoryKeyIndex() *MemoryKeyIndex {
	return &MemoryKeyIndex{sets: make(map[string][]KeyVector)}
}

// Replace implements KeyIndex.
func (m *MemoryKeyIndex) Replace(_ context.Context, model string, keys []KeyVector) error {
	if model == "" {
		return errors.New("answer: key index: empty model")
	}
	cp := slices.Clone(keys)
	m.mu.Lock()
	m.sets[model] = cp
	m.mu.Unlock()
	return nil
}

// Nearest implements KeyIndex.
func (m *MemoryKeyIndex) Nearest(_ context.Context, model string, vec []float32, k int) ([]KeyHit, error) {
	m.mu.RLock()
	keys := m.sets[model]
	m.mu.RUnlock()

	hits := make([]KeyHit, 0, len(keys))
	for _, kv := range keys {
		hits = append(hits, KeyHit{Tag: kv.Tag, Key: kv.Key, Distance: embeddings.CosineDistance(vec, kv.Vector)})
	}
	slices.SortStableFunc(hits, func(a, b KeyHit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

var _ KeyIndex = (*MemoryKeyIndex)(nil)
