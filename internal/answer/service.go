package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/komekshi/pkg/provider/answer"
)

// ErrEmptyQuery is returned by Ask for empty or whitespace-only text.
var ErrEmptyQuery = errors.New("answer: empty query")

// Stage names reported in Reply.MatchedBy.
const (
	ByRules    = "rules"
	ByLLM      = "llm"
	BySemantic = "semantic"
	ByAck      = "ack"
	ByDefault  = "default"
)

// DefaultStripNames are assistant names removed from the start of a query.
var DefaultStripNames = []string{"хурлиман", "hurli", "hurliman", "khurliman", "qurliman"}

// ServiceOption is a functional option for [NewService].
type ServiceOption func(*Service)

// WithClassifier enables the LLM stage.
func WithClassifier(c *Classifier) ServiceOption {
	return func(s *Service) {
		s.classifier = c
	}
}

// WithSemantic enables the embeddings stage.
func WithSemantic(m *Semantic) ServiceOption {
	return func(s *Service) {
		s.semantic = m
	}
}

// WithStripNames replaces the assistant names stripped from queries.
func WithStripNames(names ...string) ServiceOption {
	return func(s *Service) {
		s.stripNames = names
	}
}

// WithAckSentinel sets the text that marks a bare wake word.
func WithAckSentinel(sentinel string) ServiceOption {
	return func(s *Service) {
		s.ackSentinel = sentinel
	}
}

// WithOnMatch registers a hook called with every reply and the query it
// answered, e.g. for metrics.
func WithOnMatch(fn func(query string, reply answer.Reply)) ServiceOption {
	return func(s *Service) {
		s.onMatch = fn
	}
}

// Service is the local answer service. It implements [answer.Provider] and
// is safe for concurrent use; the index can be swapped at runtime.
type Service struct {
	index       atomic.Pointer[Index]
	classifier  *Classifier
	semantic    *Semantic
	stripNames  []string
	ackSentinel string
	onMatch     func(string, answer.Reply)
}

// NewService creates a Service over idx.
func NewService(idx *Index, opts ...ServiceOption) *Service {
	s := &Service{
		stripNames:  DefaultStripNames,
		ackSentinel: "__wake_ack__",
	}
	for _, o := range opts {
		o(s)
	}
	s.index.Store(idx)
	return s
}

// Index returns the active index.
func (s *Service) Index() *Index {
	return s.index.Load()
}

// SetIndex swaps the active index. When the semantic stage is enabled its
// keys are rebuilt first; a failed rebuild keeps the old index.
func (s *Service) SetIndex(ctx context.Context, idx *Index) error {
	if s.semantic != nil {
		if err := s.semantic.Build(ctx, idx.Items()); err != nil {
			return err
		}
	}
	s.index.Store(idx)
	return nil
}

// Ask implements answer.Provider.
func (s *Service) Ask(ctx context.Context, text string) (answer.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return answer.Reply{}, ErrEmptyQuery
	}
	q := StripName(text, s.stripNames)
	idx := s.index.Load()

	reply := s.resolve(ctx, idx, q)
	if s.onMatch != nil {
		s.onMatch(q, reply)
	}
	return reply, nil
}

func (s *Service) resolve(ctx context.Context, idx *Index, q string) answer.Reply {
	ack := q == s.ackSentinel
	if ack {
		if it, ok := idx.ByTag(s.ackSentinel); ok {
			return replyFor(it.Audio, it.Tag, ByAck)
		}
	}

	if it, score, ok := idx.Match(q); ok {
		slog.Debug("answer: rule match", "tag", it.Tag, "score", score)
		return replyFor(it.Audio, it.Tag, ByRules)
	}
	if ack {
		return replyFor(idx.DefaultAudio(), ByDefault, ByDefault)
	}

	if s.classifier != nil {
		tag, err := s.classifier.Classify(ctx, q, idx.Tags())
		switch {
		case err != nil:
			slog.Warn("answer: classifier failed", "err", err)
		case tag != NoTag:
			if it, ok := idx.ByTag(tag); ok {
				return replyFor(it.Audio, it.Tag, ByLLM)
			}
		}
	}

	if s.semantic != nil {
		hit, ok, err := s.semantic.Match(ctx, q)
		switch {
		case err != nil:
			slog.Warn("answer: semantic match failed", "err", err)
		case ok:
			if it, found := idx.ByTag(hit.Tag); found {
				slog.Debug("answer: semantic match", "tag", hit.Tag, "key", hit.Key, "distance", hit.Distance)
				return replyFor(it.Audio, it.Tag, BySemantic)
			}
		}
	}

	return replyFor(idx.DefaultAudio(), ByDefault, ByDefault)
}

func replyFor(audio, tag, by string) answer.Reply {
	return answer.Reply{
		AudioURL:   "/" + strings.TrimLeft(audio, "/"),
		ScreenText: tag + " (" + by + ")",
		MatchedTag: tag,
		MatchedBy:  by,
	}
}

// StripName removes a leading assistant name followed by whitespace from
// text. Names compare case-insensitively; the first matching name wins.
func StripName(text string, names []string) string {
	for _, name := range names {
		n := utf8.RuneCountInString(name)
		i, count := 0, 0
		for i < len(text) && count < n {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
			count++
		}
		if count < n || i >= len(text) || !strings.EqualFold(text[:i], name) {
			continue
		}
		r, _ := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			continue
		}
		return strings.TrimSpace(text[i:])
	}
	return text
}
