// Package wake implements wake-word detection and the awake-window gate that
// decides which recognised utterances become assistant queries.
//
// Detection and stripping share one canonical [Table]: whatever phrase
// detects the wake word is also the phrase removed from the query, so the
// two can never disagree.
//
// Matching is prefix-exact by default. A fuzzy second pass based on
// Jaro-Winkler similarity can be enabled for recognisers that misspell the
// wake word in stable ways.
package wake

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// DefaultPhrases is the stock trigger list: the assistant name "көмекші" plus
// the spellings speech recognisers commonly produce for it.
var DefaultPhrases = []string{
	"көмекші", "көмекшім", "емші", "тапшы", "айтшы", "шашы", "айша", "наша",
	"үшін", "шын", "барша", "қазақша", "патша", "өтірікші", "көрші",
	"көмекши", "көмек", "өмір күші", "көмек ші", "көмек ши",
}

// Table is an immutable set of trigger phrases. Phrases are stored lower-case
// with single spaces, de-duplicated, and ordered longest first so that the
// most specific phrase wins ("көмекші" before "көмек").
type Table struct {
	phrases []string
	words   [][]string
}

// NewTable normalises and indexes phrases. Blank entries are ignored.
func NewTable(phrases []string) Table {
	seen := make(map[string]struct{}, len(phrases))
	var out []string
	for _, p := range phrases {
		n := Normalize(p)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})
	words := make([][]string, len(out))
	for i, p := range out {
		words[i] = strings.Fields(p)
	}
	return Table{phrases: out, words: words}
}

// DefaultTable returns a Table built from [DefaultPhrases].
func DefaultTable() Table { return NewTable(DefaultPhrases) }

// Phrases returns a copy of the normalised phrases, longest first.
func (t Table) Phrases() []string { return slices.Clone(t.phrases) }

// Len returns the number of distinct phrases.
func (t Table) Len() int { return len(t.phrases) }

// Normalize lower-cases s and collapses whitespace runs into single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Match is the result of a successful wake-word lookup.
type Match struct {
	// Trigger is the normalised phrase that matched.
	Trigger string

	// Rest is the text following the trigger with its original casing,
	// trimmed. Empty for a bare wake word.
	Rest string

	// Score is 1 for exact matches and the Jaro-Winkler similarity for
	// fuzzy ones.
	Score float64
}

// Match reports whether text starts with a trigger phrase. The text must
// equal the phrase or continue with whitespace after it; neither
// "көмекшілер" nor "көмекші," matches "көмекші". Case is folded rune by rune and any
// whitespace run in text matches a single space in the phrase.
func (t Table) Match(text string) (Match, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Match{}, false
	}
	for _, p := range t.phrases {
		if rest, ok := matchPrefix(text, p); ok {
			return Match{Trigger: p, Rest: rest, Score: 1}, true
		}
	}
	return Match{}, false
}

// MatchFuzzy is [Table.Match] with a Jaro-Winkler fallback: when no phrase
// matches exactly, the leading words of text are compared against every
// phrase with the same word count and the best score at or above threshold
// wins. A threshold <= 0 disables the fallback.
func (t Table) MatchFuzzy(text string, threshold float64) (Match, bool) {
	if m, ok := t.Match(text); ok || threshold <= 0 {
		return m, ok
	}
	fields := strings.FieldsFunc(text, isSeparator)
	if len(fields) == 0 {
		return Match{}, false
	}

	var best Match
	var bestWords int
	for i, p := range t.phrases {
		n := len(t.words[i])
		if n > len(fields) {
			continue
		}
		head := strings.ToLower(strings.Join(fields[:n], " "))
		score := matchr.JaroWinkler(head, p, false)
		if score >= threshold && score > best.Score {
			best = Match{Trigger: p, Score: score}
			bestWords = n
		}
	}
	if best.Trigger == "" {
		return Match{}, false
	}
	best.Rest = strings.Join(fields[bestWords:], " ")
	return best, true
}

// matchPrefix walks text and phrase in lock step. phrase is already
// normalised. It returns the trimmed remainder of text on success.
func matchPrefix(text, phrase string) (string, bool) {
	i := 0
	for _, pr := range phrase {
		if i >= len(text) {
			return "", false
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if pr == ' ' {
			if !unicode.IsSpace(r) {
				return "", false
			}
			for i < len(text) {
				r, size = utf8.DecodeRuneInString(text[i:])
				if !unicode.IsSpace(r) {
					break
				}
				i += size
			}
			continue
		}
		if unicode.ToLower(r) != pr {
			return "", false
		}
		i += size
	}
	if i == len(text) {
		return "", true
	}
	if r, _ := utf8.DecodeRuneInString(text[i:]); !unicode.IsSpace(r) {
		return "", false
	}
	return strings.TrimLeftFunc(text[i:], unicode.IsSpace), true
}

// isSeparator splits words for fuzzy matching, which tolerates punctuation.
func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
