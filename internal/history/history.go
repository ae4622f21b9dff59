// Package history records every dispatched query and how it ended, so the
// operator can review what the assistant heard and answered.
package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the number of entries a [MemStore] keeps.
const DefaultCapacity = 200

// Entry is one dispatched query.
type Entry struct {
	ID         int64         `json:"id"`
	Session    string        `json:"session"`
	Seq        uint64        `json:"seq"`
	Transcript string        `json:"transcript,omitempty"`
	Query      string        `json:"query"`
	Ack        bool          `json:"ack,omitempty"`
	Tag        string        `json:"tag,omitempty"`
	MatchedBy  string        `json:"matched_by,omitempty"`
	AudioURL   string        `json:"audio_url,omitempty"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
	At         time.Time     `json:"at"`
}

// Store persists history entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append stores e. The store assigns e.ID.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// ─── In-memory store ──────────────────────────────────────────────────────────

// MemStore is a bounded in-memory [Store]; the oldest entries are evicted
// once capacity is reached.
type MemStore struct {
	mu      sync.Mutex
	entries []Entry
	next    int64
	cap     int
}

// NewMemStore creates a MemStore holding up to capacity entries.
// capacity <= 0 means DefaultCapacity.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemStore{cap: capacity}
}

// Append implements Store.
func (m *MemStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	e.ID = m.next
	if len(m.entries) == m.cap {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:m.cap-1]
	}
	m.entries = append(m.entries, e)
	return nil
}

// Recent implements Store.
func (m *MemStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

var _ Store = (*MemStore)(nil)

// ─── Guard ────────────────────────────────────────────────────────────────────

// Guard wraps a [Store] and makes all operations non-fatal: failures are
// logged, reads return an empty slice and the store is marked degraded until
// the next successful call. History must never break the dialogue.
type Guard struct {
	store    Store
	degraded atomic.Bool
}

// NewGuard wraps store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Append implements Store and never returns an error.
func (g *Guard) Append(ctx context.Context, e Entry) error {
	if err := g.store.Append(ctx, e); err != nil {
		g.degraded.Store(true)
		slog.Warn("history guard: append failed, swallowing error", "session", e.Session, "seq", e.Seq, "err", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// Recent implements Store and never returns an error.
func (g *Guard) Recent(ctx context.Context, limit int) ([]Entry, error) {
	entries, err := g.store.Recent(ctx, limit)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("history guard: recent failed, returning empty", "limit", limit, "err", err)
		return []Entry{}, nil
	}
	g.degraded.Store(false)
	return entries, nil
}

// IsDegraded reports whether the most recent operation failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}

var _ Store = (*Guard)(nil)

// ─── Recorder ─────────────────────────────────────────────────────────────────

// Recorder moves entries to a Store on its own goroutine so that callers on
// hot paths never wait for the database.
type Recorder struct {
	store   Store
	ch      chan Entry
	dropped atomic.Int64
}

// NewRecorder creates a Recorder with a queue of size entries.
func NewRecorder(store Store, size int) *Recorder {
	if size <= 0 {
		size = 64
	}
	return &Recorder{store: store, ch: make(chan Entry, size)}
}

// Record queues e without blocking. It returns false when the queue is full
// and e was dropped.
func (r *Recorder) Record(e Entry) bool {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case r.ch <- e:
		return true
	default:
		r.dropped.Add(1)
		slog.Warn("history: recorder queue full, dropping entry", "session", e.Session, "seq", e.Seq)
		return false
	}
}

// Dropped returns the number of entries dropped because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// left with a short grace period.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case e := <-r.ch:
			r.write(ctx, e)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			for {
				select {
				case e := <-r.ch:
					r.write(flushCtx, e)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	if err := r.store.Append(ctx, e); err != nil {
		slog.Warn("history: append failed", "session", e.Session, "seq", e.Seq, "err", err)
	}
}
