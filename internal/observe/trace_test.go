package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSessionID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := SessionID(ctx); got != "" {
		t.Errorf("SessionID(background) = %q, want empty", got)
	}
	ctx = WithSession(ctx, "s-1")
	if got := SessionID(ctx); got != "s-1" {
		t.Errorf("SessionID = %q, want s-1", got)
	}
}

func TestStartSpan_TagsSession(t *testing.T) {
	exp := useTestTracer(t)

	_, plain := StartSpan(context.Background(), "stt.remote")
	plain.End()
	_, tagged := StartSpan(WithSession(context.Background(), "s-42"), "stt.remote")
	tagged.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	sessionOf := func(i int) string {
		for _, a := range spans[i].Attributes {
			if a.Key == "session" {
				return a.Value.AsString()
			}
		}
		return ""
	}
	if got := sessionOf(0); got != "" {
		t.Errorf("untagged span has session %q", got)
	}
	if got := sessionOf(1); got != "s-42" {
		t.Errorf("session attribute = %q, want s-42", got)
	}
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "ask")
		id := CorrelationID(ctx)
		span.End()
		if len(id) != 32 || strings.Trim(id, "0123456789abcdef") != "" {
			t.Fatalf("correlation id %q is not 32 hex chars", id)
		}
		if seen[id] {
			t.Fatalf("duplicate correlation id %s", id)
		}
		seen[id] = true
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name    string
		ctx     func() (context.Context, func())
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     func() (context.Context, func()) { return context.Background(), func() {} },
			notWant: []string{"trace_id=", "session="},
		},
		{
			name: "session only",
			ctx: func() (context.Context, func()) {
				return WithSession(context.Background(), "s-7"), func() {}
			},
			want:    []string{"session=s-7"},
			notWant: []string{"trace_id="},
		},
		{
			name: "span and session",
			ctx: func() (context.Context, func()) {
				ctx, span := StartSpan(WithSession(context.Background(), "s-8"), "ws")
				return ctx, func() { span.End() }
			},
			want: []string{"trace_id=", "span_id=", "session=s-8"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()
			ctx, done := tc.ctx()
			defer done()

			Logger(ctx).Info("capture started")
			out := buf.String()
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Errorf("log %q missing %q", out, w)
				}
			}
			for _, w := range tc.notWant {
				if strings.Contains(out, w) {
					t.Errorf("log %q contains %q", out, w)
				}
			}
		})
	}
}
