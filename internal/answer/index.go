// Package answer is the local answer service: it maps a query onto one item
// of an audio answer index and builds the [answer.Reply] the page renders.
//
// Matching runs in stages and stops at the first hit:
//
//  1. keyword rules over the normalised query ([Index.Match])
//  2. optional LLM classification into one of the index tags ([Classifier])
//  3. optional semantic search over embedded keys ([Semantic])
//  4. the index's default audio
package answer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"unicode/utf8"
)

// ErrIndexNotFound is returned by LoadIndex when the index file is missing.
var ErrIndexNotFound = errors.New("answer: index not found")

// DefaultAudio is used when the index names no default or fallback clip.
const DefaultAudio = "static/audio/fallback.mp3"

// Item is one answer of the index.
type Item struct {
	// Tag identifies the answer in replies and classifier prompts.
	Tag string

	// Audio is the clip path relative to the web root.
	Audio string

	// Keys are the normalised trigger phrases.
	Keys []string
}

// Index is an immutable, loaded answer index.
type Index struct {
	defaultAudio string
	items        []Item
	tags         []string
}

// rawItem accepts both index schemas.
type rawItem struct {
	ID    string   `json:"id"`
	Tag   string   `json:"tag"`
	Audio string   `json:"audio"`
	Keys  []string `json:"keys"`
}

// LoadIndex reads and parses the index file at path.
func LoadIndex(p string) (*Index, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("answer: read index: %w", err)
	}
	idx, err := ParseIndex(data)
	if err != nil {
		return nil, fmt.Errorf("answer: %s: %w", p, err)
	}
	return idx, nil
}

// ParseIndex parses an index document in either supported schema:
//
//   - {"default_audio": "...", "items": [{"audio", "keys", "tag"}]}
//   - [{"id", "audio", "keys"}, ..., {"id": "fallback", "audio": "..."}]
//
// Items without audio or without keys are skipped. An item's tag falls back
// to its id, then to the audio file's base name without extension.
func ParseIndex(data []byte) (*Index, error) {
	var (
		raw          []rawItem
		defaultAudio string
	)

	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var doc struct {
			DefaultAudio string     `json:"default_audio"`
			Items        *[]rawItem `json:"items"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse index: %w", err)
		}
		if doc.Items == nil {
			return nil, errors.New("parse index: object without \"items\"")
		}
		raw = *doc.Items
		defaultAudio = doc.DefaultAudio
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse index: %w", err)
		}
		for _, it := range raw {
			if it.ID == "fallback" {
				defaultAudio = it.Audio
				break
			}
		}
	default:
		return nil, errors.New("parse index: invalid format")
	}

	if defaultAudio == "" {
		defaultAudio = DefaultAudio
	}

	idx := &Index{defaultAudio: defaultAudio}
	seen := make(map[string]bool)
	for _, it := range raw {
		if it.Audio == "" || len(it.Keys) == 0 {
			continue
		}
		tag := it.Tag
		if tag == "" {
			tag = it.ID
		}
		if tag == "" {
			base := path.Base(it.Audio)
			tag = strings.TrimSuffix(base, path.Ext(base))
		}
		keys := make([]string, 0, len(it.Keys))
		for _, k := range it.Keys {
			if n := Normalize(k); n != "" {
				keys = append(keys, n)
			}
		}
		idx.items = append(idx.items, Item{Tag: tag, Audio: it.Audio, Keys: keys})
		if !seen[tag] {
			seen[tag] = true
			idx.tags = append(idx.tags, tag)
		}
	}
	return idx, nil
}

// Items returns the usable items in index order.
func (x *Index) Items() []Item {
	return x.items
}

// Tags returns the distinct item tags in index order.
func (x *Index) Tags() []string {
	return x.tags
}

// DefaultAudio returns the clip played when nothing matches.
func (x *Index) DefaultAudio() string {
	return x.defaultAudio
}

// Len returns the number of usable items.
func (x *Index) Len() int {
	return len(x.items)
}

// ByTag returns the first item with the given tag.
func (x *Index) ByTag(tag string) (Item, bool) {
	for _, it := range x.items {
		if it.Tag == tag {
			return it, true
		}
	}
	return Item{}, false
}

// Normalize lower-cases s and collapses whitespace runs into single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ─── Keyword rules ────────────────────────────────────────────────────────────

// Match scores every item against the query and returns the best one. For
// each key of an item:
//
//   - the key occurring as a substring of the query adds 5 plus its
//     length in runes
//   - every key word also present in the query adds 3, plus 1 when all key
//     words are present
//
// The highest positive score wins; ties keep the earlier item.
func (x *Index) Match(query string) (Item, int, bool) {
	n := Normalize(query)
	if n == "" {
		return Item{}, 0, false
	}
	words := make(map[string]bool)
	for _, w := range strings.Fields(n) {
		words[w] = true
	}

	var (
		best      Item
		bestScore int
	)
	for _, it := range x.items {
		score := 0
		for _, k := range it.Keys {
			if strings.Contains(n, k) {
				score += 5 + utf8.RuneCountInString(k)
			}
			kw := uniqueWords(k)
			inter := 0
			for _, w := range kw {
				if words[w] {
					inter++
				}
			}
			if inter > 0 {
				score += 3 * inter
				if inter == len(kw) {
					score++
				}
			}
		}
		if score > bestScore {
			best, bestScore = it, score
		}
	}
	return best, bestScore, bestScore > 0
}

func uniqueWords(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0:0]
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
