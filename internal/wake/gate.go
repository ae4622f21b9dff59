package wake

import (
	"strings"
	"sync"
	"time"
)

// Defaults for [Rules].
const (
	DefaultAwakeTimeout = 10 * time.Second
	DefaultAckSentinel  = "__wake_ack__"
)

// SessionState is the gate's explicit state. The zero value is idle.
type SessionState struct {
	// Awake is true while an awake window is open.
	Awake bool

	// Until is the deadline of the awake window. Events after Until behave
	// as if the session were idle.
	Until time.Time

	// Pending is the sequence number of the most recent dispatched query, or
	// zero before the first dispatch.
	Pending uint64
}

// Kind classifies a gate [Decision].
type Kind int

const (
	// Drop means the utterance is ignored.
	Drop Kind = iota

	// Dispatch means the utterance becomes a query.
	Dispatch

	// Expired means an awake window timed out before this utterance; the
	// utterance is ignored and the listening prompt should be shown again.
	Expired
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case Drop:
		return "DROP"
	case Dispatch:
		return "DISPATCH"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Decision is the outcome of gating one recognised utterance.
type Decision struct {
	Kind Kind

	// Query is the text to send for Dispatch decisions. For a bare wake word
	// it is the acknowledgement sentinel.
	Query string

	// Ack is true when Query is the acknowledgement sentinel.
	Ack bool

	// Trigger is the wake phrase that opened the window, if this utterance
	// carried one.
	Trigger string

	// Seq is the sequence number assigned to a Dispatch decision.
	Seq uint64
}

// Rules configures [Decide].
type Rules struct {
	Table Table

	// Timeout is the length of the awake window.
	Timeout time.Duration

	// AckSentinel is dispatched when the utterance is only the wake word.
	AckSentinel string

	// FuzzyThreshold enables Jaro-Winkler wake matching when > 0.
	FuzzyThreshold float64
}

// DefaultRules returns rules over [DefaultTable] with the default timeout and
// sentinel.
func DefaultRules() Rules {
	return Rules{
		Table:       DefaultTable(),
		Timeout:     DefaultAwakeTimeout,
		AckSentinel: DefaultAckSentinel,
	}
}

func (r Rules) withDefaults() Rules {
	if r.Timeout <= 0 {
		r.Timeout = DefaultAwakeTimeout
	}
	if r.AckSentinel == "" {
		r.AckSentinel = DefaultAckSentinel
	}
	return r
}

// Decide gates one recognised utterance. It is pure: the returned state
// replaces st and nothing else is touched. Dispatch decisions carry
// st.Pending+1 as their sequence number.
//
//   - idle + wake word: open the window and dispatch the remainder (or the
//     sentinel for a bare wake word)
//   - awake within the window: dispatch the whole text
//   - awake past the window: close it and drop the text, even when it
//     starts with a wake word
//   - idle without wake word: drop
func Decide(st SessionState, text string, now time.Time, r Rules) (SessionState, Decision) {
	r = r.withDefaults()
	text = strings.TrimSpace(text)
	if text == "" {
		return st, Decision{Kind: Drop}
	}

	if st.Awake {
		if !now.After(st.Until) {
			st.Pending++
			return st, Decision{Kind: Dispatch, Query: text, Seq: st.Pending}
		}
		st.Awake = false
		st.Until = time.Time{}
		return st, Decision{Kind: Expired}
	}

	m, ok := r.Table.MatchFuzzy(text, r.FuzzyThreshold)
	if !ok {
		return st, Decision{Kind: Drop}
	}

	st.Awake = true
	st.Until = now.Add(r.Timeout)
	st.Pending++
	d := Decision{Kind: Dispatch, Query: m.Rest, Trigger: m.Trigger, Seq: st.Pending}
	if d.Query == "" {
		d.Query = r.AckSentinel
		d.Ack = true
	}
	return st, d
}

// Complete applies the end of a dispatched query: if seq is the most recent
// dispatch, the session returns to idle. Completions of older queries leave
// the state unchanged.
func Complete(st SessionState, seq uint64) SessionState {
	if seq != st.Pending {
		return st
	}
	st.Awake = false
	st.Until = time.Time{}
	return st
}

// ─── Gate ─────────────────────────────────────────────────────────────────────

// GateOption is a functional option for [NewGate].
type GateOption func(*Gate)

// WithClock overrides the time source. Defaults to time.Now.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

// Gate owns one capture session's [SessionState] and serialises access to
// it. All methods are safe for concurrent use.
type Gate struct {
	mu    sync.Mutex
	st    SessionState
	rules Rules
	now   func() time.Time
}

// NewGate creates an idle Gate with the given rules.
func NewGate(rules Rules, opts ...GateOption) *Gate {
	g := &Gate{rules: rules.withDefaults(), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Handle gates text against the current state at the current time.
func (g *Gate) Handle(text string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	var d Decision
	g.st, d = Decide(g.st, text, g.now(), g.rules)
	return d
}

// Complete reports that the dispatch with sequence number seq finished.
func (g *Gate) Complete(seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st = Complete(g.st, seq)
}

// State returns a snapshot of the gate state.
func (g *Gate) State() SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st
}

// SetRules swaps the rules, e.g. after a configuration reload. An open awake
// window keeps its current deadline.
func (g *Gate) SetRules(r Rules) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = r.withDefaults()
}

// Rules returns the active rules.
func (g *Gate) Rules() Rules {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rules
}
