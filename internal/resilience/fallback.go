package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [Group] failed or was
// rejected by its breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for each entry of a [Group].
// CircuitBreaker.Name is overwritten with the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type entry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// EntryStatus is a snapshot of one entry of a [Group].
type EntryStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Group holds a primary provider and its fallbacks in the order they are
// tried. Entries are added before the group is shared.
type Group[T any] struct {
	entries []entry[T]
	cfg     FallbackConfig
}

// NewGroup creates a Group with primary as its first entry.
func NewGroup[T any](primaryName string, primary T, cfg FallbackConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback.
func (g *Group[T]) Add(name string, v T) {
	cb := g.cfg.CircuitBreaker
	cb.Name = name
	g.entries = append(g.entries, entry[T]{name: name, value: v, breaker: NewCircuitBreaker(cb)})
}

// Primary returns the first entry.
func (g *Group[T]) Primary() T { return g.entries[0].value }

// Len returns the number of entries.
func (g *Group[T]) Len() int { return len(g.entries) }

// Status reports the breaker state of every entry.
func (g *Group[T]) Status() []EntryStatus {
	out := make([]EntryStatus, len(g.entries))
	for i, e := range g.entries {
		out[i] = EntryStatus{Name: e.name, State: e.breaker.State().String()}
	}
	return out
}

// Available reports whether at least one entry would accept a call.
func (g *Group[T]) Available() bool {
	for _, e := range g.entries {
		if e.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Check is a readiness probe that fails while every breaker is open.
func (g *Group[T]) Check(context.Context) error {
	if g.Available() {
		return nil
	}
	return fmt.Errorf("%w: every circuit is open", ErrAllFailed)
}

// Call tries fn against each entry in order until one succeeds. It stops
// early, returning ctx's error, once ctx is done.
func Call[T, R any](ctx context.Context, g *Group[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.entries {
		e := &g.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var res R
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			res, err = fn(ctx, e.value)
			return err
		})
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping provider, circuit open", "provider", e.name)
			continue
		}
		if i < len(g.entries)-1 {
			slog.Warn("resilience: provider failed, trying next", "provider", e.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
