// Package answer defines the Provider interface for answer services.
//
// An answer service maps an accepted query to a reply: an optional audio clip
// the page plays back and a short text shown on screen. Komekshi ships a
// local implementation (internal/answer) and a client for a remote service
// speaking the same JSON contract.
//
// Implementations must be safe for concurrent use.
package answer

import (
	"context"
)

// Reply is the answer service's response to one query.
type Reply struct {
	// AudioURL is the clip to play. Empty means a display-only reply.
	AudioURL string `json:"audio_url"`

	// ScreenText is the text to render.
	ScreenText string `json:"screen_text"`

	// MatchedTag is the tag of the index item that was chosen.
	MatchedTag string `json:"matched_tag"`

	// MatchedBy names the stage that produced the match ("rules", "llm",
	// "semantic", "ack", "default").
	MatchedBy string `json:"matched_by"`
}

// Provider is the abstraction over any answer backend.
type Provider interface {
	// Ask resolves text to a Reply. text is already stripped of the wake word
	// or is the acknowledgement sentinel.
	Ask(ctx context.Context, text string) (Reply, error)
}
