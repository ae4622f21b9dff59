package answer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/komekshi/pkg/provider/llm"
)

// NoTag is the classifier's answer when no tag fits.
const NoTag = "NONE"

const classifyPrompt = "You are a classifier. Given a user query in Karakalpak/Kazakh/Russian, " +
	"choose ONE best tag from the provided list. " +
	"Answer with ONLY the tag string. If nothing fits, answer NONE."

// Classifier asks an LLM to map a query onto one of a fixed set of tags.
type Classifier struct {
	llm       llm.Provider
	maxTokens int
}

// NewClassifier creates a Classifier over p.
func NewClassifier(p llm.Provider) *Classifier {
	return &Classifier{llm: p, maxTokens: 16}
}

// Classify returns one of tags, or NoTag when the model picks nothing or
// answers with something that is not in tags. Only the first line of the
// reply is considered.
func (c *Classifier) Classify(ctx context.Context, query string, tags []string) (string, error) {
	if len(tags) == 0 {
		return NoTag, nil
	}

	var sys strings.Builder
	sys.WriteString(classifyPrompt)
	sys.WriteString("\nAvailable tags:\n")
	for _, t := range tags {
		sys.WriteString("- ")
		sys.WriteString(t)
		sys.WriteString("\n")
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: sys.String(),
		Messages:     []llm.Message{llm.UserMessage(query)},
		Temperature:  llm.Temp(0),
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		return NoTag, fmt.Errorf("answer: classify: %w", err)
	}

	tag := firstLine(resp.Content)
	tag = strings.Trim(tag, " \t\"'`.-")
	if slices.Contains(tags, tag) {
		return tag, nil
	}
	return NoTag, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
