package present

import (
	"log/slog"
	"sync"
)

// EventType names the kind of an [Event] on the wire.
type EventType string

const (
	EventStatus     EventType = "status"
	EventTranscript EventType = "transcript"
	EventAnswer     EventType = "answer"
	EventPlay       EventType = "play"
	EventState      EventType = "state"
	EventLevel      EventType = "level"
)

// Event is the JSON form of one [Sink] call as sent to the browser. Level is
// always present so that silence (0) reaches the page.
type Event struct {
	Type  EventType `json:"type"`
	Text  string    `json:"text,omitempty"`
	URL   string    `json:"url,omitempty"`
	State State     `json:"state,omitempty"`
	Level float64   `json:"level"`
}

// Channel is a [Sink] that turns calls into [Event] values for a single
// consumer, typically a websocket writer. Ordinary events are kept in an
// unbounded ordered queue and never dropped; the consumer waits on
// [Channel.Ready] and takes them with [Channel.Drain]. Level updates go
// through a one-slot buffer that always holds the newest value.
type Channel struct {
	mu      sync.Mutex
	pending []Event
	ready   chan struct{}

	levels chan float64
	done   chan struct{}
	once   sync.Once

	// levelMu serialises the drop-oldest sequence on levels.
	levelMu sync.Mutex
}

// NewChannel creates a Channel. size is the initial capacity of the event
// queue, which grows as needed.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 64
	}
	return &Channel{
		pending: make([]Event, 0, size),
		ready:   make(chan struct{}, 1),
		levels:  make(chan float64, 1),
		done:    make(chan struct{}),
	}
}

// Ready receives a value whenever events were queued since the last
// [Channel.Drain].
func (c *Channel) Ready() <-chan struct{} { return c.ready }

// Drain removes and returns all queued events in the order they were sent.
func (c *Channel) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	evs := c.pending
	c.pending = make([]Event, 0, cap(evs))
	return evs
}

// Levels returns the newest-value level stream.
func (c *Channel) Levels() <-chan float64 { return c.levels }

// Done is closed by [Channel.Close].
func (c *Channel) Done() <-chan struct{} { return c.done }

// Close stops accepting events. Events queued before Close stay available
// to Drain. Safe to call more than once.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Channel) send(ev Event) {
	select {
	case <-c.done:
		return
	default:
	}
	c.mu.Lock()
	c.pending = append(c.pending, ev)
	c.mu.Unlock()
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

func (c *Channel) Status(text string)     { c.send(Event{Type: EventStatus, Text: text}) }
func (c *Channel) Transcript(text string) { c.send(Event{Type: EventTranscript, Text: text}) }
func (c *Channel) Answer(markup string)   { c.send(Event{Type: EventAnswer, Text: markup}) }
func (c *Channel) Play(url string)        { c.send(Event{Type: EventPlay, URL: url}) }
func (c *Channel) State(s State)          { c.send(Event{Type: EventState, State: s}) }

// Level publishes v, replacing an unread older value.
func (c *Channel) Level(v float64) {
	select {
	case <-c.done:
		return
	default:
	}
	c.levelMu.Lock()
	defer c.levelMu.Unlock()
	select {
	case c.levels <- v:
		return
	default:
	}
	select {
	case <-c.levels:
	default:
	}
	select {
	case c.levels <- v:
	default:
	}
}

var _ Sink = (*Channel)(nil)

// ─── Multi ────────────────────────────────────────────────────────────────────

// Multi fans every call out to several sinks in order.
type Multi []Sink

func (m Multi) Status(text string) {
	for _, s := range m {
		s.Status(text)
	}
}

func (m Multi) Transcript(text string) {
	for _, s := range m {
		s.Transcript(text)
	}
}

func (m Multi) Answer(markup string) {
	for _, s := range m {
		s.Answer(markup)
	}
}

func (m Multi) Play(url string) {
	for _, s := range m {
		s.Play(url)
	}
}

func (m Multi) State(st State) {
	for _, s := range m {
		s.State(st)
	}
}

func (m Multi) Level(v float64) {
	for _, s := range m {
		s.Level(v)
	}
}

var _ Sink = Multi(nil)

// ─── Log ──────────────────────────────────────────────────────────────────────

// Log is a [Sink] that records presentation calls at debug level. Level
// updates are ignored.
type Log struct {
	Logger *slog.Logger
}

func (l Log) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l Log) Status(text string)     { l.logger().Debug("present: status", "text", text) }
func (l Log) Transcript(text string) { l.logger().Debug("present: transcript", "text", text) }
func (l Log) Answer(markup string)   { l.logger().Debug("present: answer", "markup", markup) }
func (l Log) Play(url string)        { l.logger().Debug("present: play", "url", url) }
func (l Log) State(s State)          { l.logger().Debug("present: state", "state", s) }
func (Log) Level(float64)            {}

var _ Sink = Log{}
