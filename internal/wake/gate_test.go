package wake_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/komekshi/internal/wake"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDecide(t *testing.T) {
	t.Parallel()

	rules := wake.DefaultRules()
	awake := wake.SessionState{Awake: true, Until: t0.Add(5 * time.Second), Pending: 4}

	tests := []struct {
		name      string
		st        wake.SessionState
		text      string
		now       time.Time
		wantKind  wake.Kind
		wantQuery string
		wantAck   bool
		wantAwake bool
		wantSeq   uint64
	}{
		{name: "idle with wake and query", text: "көмекші ауа райы қалай", now: t0,
			wantKind: wake.Dispatch, wantQuery: "ауа райы қалай", wantAwake: true, wantSeq: 1},
		{name: "idle with bare wake word", text: "Көмекші", now: t0,
			wantKind: wake.Dispatch, wantQuery: wake.DefaultAckSentinel, wantAck: true, wantAwake: true, wantSeq: 1},
		{name: "idle without wake", text: "ауа райы қалай", now: t0,
			wantKind: wake.Drop},
		{name: "idle with punctuated wake", text: "көмекші, ауа райы", now: t0,
			wantKind: wake.Drop},
		{name: "empty text", st: awake, text: "  ", now: t0,
			wantKind: wake.Drop, wantAwake: true},
		{name: "awake inside window", st: awake, text: "тағы бір сұрақ", now: t0.Add(5 * time.Second),
			wantKind: wake.Dispatch, wantQuery: "тағы бір сұрақ", wantAwake: true, wantSeq: 5},
		{name: "awake inside window keeps wake word", st: awake, text: "көмекші сәлем", now: t0,
			wantKind: wake.Dispatch, wantQuery: "көмекші сәлем", wantAwake: true, wantSeq: 5},
		{name: "awake past window", st: awake, text: "тағы бір сұрақ", now: t0.Add(5*time.Second + time.Millisecond),
			wantKind: wake.Expired},
		{name: "awake past window with wake word", st: awake, text: "көмекші сәлем", now: t0.Add(time.Minute),
			wantKind: wake.Expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st, d := wake.Decide(tt.st, tt.text, tt.now, rules)
			if d.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", d.Kind, tt.wantKind)
			}
			if d.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", d.Query, tt.wantQuery)
			}
			if d.Ack != tt.wantAck {
				t.Errorf("Ack = %v, want %v", d.Ack, tt.wantAck)
			}
			if d.Seq != tt.wantSeq {
				t.Errorf("Seq = %d, want %d", d.Seq, tt.wantSeq)
			}
			if st.Awake != tt.wantAwake {
				t.Errorf("Awake = %v, want %v", st.Awake, tt.wantAwake)
			}
		})
	}
}

func TestDecide_OpensWindowWithTimeout(t *testing.T) {
	t.Parallel()

	rules := wake.DefaultRules()
	rules.Timeout = 3 * time.Second
	st, _ := wake.Decide(wake.SessionState{}, "көмекші", t0, rules)
	if !st.Until.Equal(t0.Add(3 * time.Second)) {
		t.Errorf("Until = %v, want %v", st.Until, t0.Add(3*time.Second))
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	st := wake.SessionState{Awake: true, Until: t0, Pending: 3}
	if got := wake.Complete(st, 2); !got.Awake {
		t.Error("completion of an older dispatch must not close the window")
	}
	if got := wake.Complete(st, 3); got.Awake || !got.Until.IsZero() {
		t.Errorf("completion of latest dispatch: got %+v, want idle", got)
	}
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGate_SecondUtteranceInsideWindow(t *testing.T) {
	t.Parallel()

	clk := &clock{now: t0}
	g := wake.NewGate(wake.DefaultRules(), wake.WithClock(clk.Now))

	first := g.Handle("көмекші")
	if first.Kind != wake.Dispatch || !first.Ack {
		t.Fatalf("first = %+v, want ack dispatch", first)
	}

	clk.Advance(4 * time.Second)
	second := g.Handle("бүгін қай күн")
	if second.Kind != wake.Dispatch || second.Query != "бүгін қай күн" {
		t.Fatalf("second = %+v, want dispatch of full text", second)
	}

	// The first request completes late; the second is still in flight.
	g.Complete(first.Seq)
	if !g.State().Awake {
		t.Error("stale completion closed the window")
	}
	g.Complete(second.Seq)
	if g.State().Awake {
		t.Error("gate still awake after latest completion")
	}

	if d := g.Handle("бүгін қай күн"); d.Kind != wake.Drop {
		t.Errorf("after completion Kind = %v, want DROP", d.Kind)
	}
}

func TestGate_WindowExpires(t *testing.T) {
	t.Parallel()

	clk := &clock{now: t0}
	g := wake.NewGate(wake.DefaultRules(), wake.WithClock(clk.Now))
	g.Handle("көмекші")

	clk.Advance(wake.DefaultAwakeTimeout + time.Millisecond)
	if d := g.Handle("бүгін қай күн"); d.Kind != wake.Expired {
		t.Fatalf("Kind = %v, want EXPIRED", d.Kind)
	}
	if g.State().Awake {
		t.Error("gate still awake after expiry")
	}
}

func TestGate_ExpiredWakeWordIsDropped(t *testing.T) {
	t.Parallel()

	clk := &clock{now: t0}
	g := wake.NewGate(wake.DefaultRules(), wake.WithClock(clk.Now))
	g.Handle("көмекші")

	clk.Advance(time.Minute)
	if d := g.Handle("көмекші сәлем"); d.Kind != wake.Expired || d.Query != "" {
		t.Fatalf("Decision = %+v, want EXPIRED without query", d)
	}
	if g.State().Awake {
		t.Error("expired utterance reopened the window")
	}
	if d := g.Handle("көмекші сәлем"); d.Kind != wake.Dispatch || d.Query != "сәлем" {
		t.Errorf("next wake Decision = %+v, want DISPATCH сәлем", d)
	}
}

func TestGate_SetRules(t *testing.T) {
	t.Parallel()

	g := wake.NewGate(wake.Rules{Table: wake.NewTable([]string{"hurliman"})})
	if d := g.Handle("көмекші сәлем"); d.Kind != wake.Drop {
		t.Fatalf("Kind = %v, want DROP before reload", d.Kind)
	}
	g.SetRules(wake.DefaultRules())
	if d := g.Handle("көмекші сәлем"); d.Kind != wake.Dispatch {
		t.Fatalf("Kind = %v, want DISPATCH after reload", d.Kind)
	}
	if g.Rules().AckSentinel != wake.DefaultAckSentinel {
		t.Errorf("AckSentinel = %q", g.Rules().AckSentinel)
	}
}
