// Package present defines the presentation side of the assistant: the [Sink]
// the tick loop and the dispatcher render through, the JSON [Event] form sent
// to the browser, and the user-facing [Messages].
package present

import (
	"html"
	"strings"
)

// State is the assistant's visual state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateSpeaking  State = "speaking"
)

// Sink receives everything the user sees or hears. Implementations must be
// safe for concurrent use and must not block: the tick loop calls Level and
// State on every frame.
type Sink interface {
	// Status replaces the one-line status text.
	Status(text string)

	// Transcript shows the recognised text of the last utterance.
	Transcript(text string)

	// Answer replaces the answer area with trusted markup.
	Answer(markup string)

	// Play starts playback of the audio at url.
	Play(url string)

	// State switches the visual state.
	State(s State)

	// Level updates the live input level in [0, 1]. Level updates are
	// decorative and may be dropped under back-pressure.
	Level(v float64)
}

// AnswerMarkup wraps a reply's display text in the answer container. The
// text is escaped; only the wrapper is markup.
func AnswerMarkup(text string) string {
	return `<div class="ans-text">` + html.EscapeString(text) + `</div>`
}

// HintMarkup renders remediation hints as a list. Each hint is a label and a
// description; both are escaped.
func HintMarkup(hints []Hint) string {
	var b strings.Builder
	b.WriteString(`<ul class="hint-list">`)
	for _, h := range hints {
		b.WriteString("<li><b>")
		b.WriteString(html.EscapeString(h.Label))
		b.WriteString(":</b> ")
		b.WriteString(html.EscapeString(h.Text))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// Hint is one remediation line shown after a capture failure.
type Hint struct {
	Label string `yaml:"label"`
	Text  string `yaml:"text"`
}
