package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestGroup() *Group[string] {
	g := NewGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	g.Add("secondary", "secondary")
	return g
}

func TestCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failing map[string]bool
		want    string
		wantErr bool
	}{
		{name: "primary answers", want: "primary"},
		{name: "falls back", failing: map[string]bool{"primary": true}, want: "secondary"},
		{name: "all fail", failing: map[string]bool{"primary": true, "secondary": true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newTestGroup()
			got, err := Call(context.Background(), g, func(_ context.Context, v string) (string, error) {
				if tt.failing[v] {
					return "", errTest
				}
				return v, nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping the last error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCall_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()
	g := newTestGroup()
	calls := map[string]int{}
	fn := func(_ context.Context, v string) (string, error) {
		calls[v]++
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	}
	for range 4 {
		if _, err := Call(context.Background(), g, fn); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}
	if calls["primary"] != 2 {
		t.Errorf("primary calls = %d, want 2 before the circuit opened", calls["primary"])
	}
	if calls["secondary"] != 4 {
		t.Errorf("secondary calls = %d, want 4", calls["secondary"])
	}
	st := g.Status()
	if st[0].State != "open" || st[1].State != "closed" {
		t.Errorf("status = %+v", st)
	}
}

func TestCall_StopsOnCancellation(t *testing.T) {
	t.Parallel()
	g := newTestGroup()
	ctx, cancel := context.WithCancel(context.Background())
	var tried []string
	_, err := Call(ctx, g, func(ctx context.Context, v string) (string, error) {
		tried = append(tried, v)
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(tried) != 1 {
		t.Errorf("tried = %v, want only the primary", tried)
	}
	if g.Status()[0].State != "closed" {
		t.Error("cancellation counted against the primary")
	}
}

func TestGroup_Check(t *testing.T) {
	t.Parallel()
	g := NewGroup("only", "only", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}})
	if err := g.Check(context.Background()); err != nil {
		t.Fatalf("Check on fresh group: %v", err)
	}
	_, _ = Call(context.Background(), g, func(context.Context, string) (int, error) { return 0, errTest })
	if err := g.Check(context.Background()); !errors.Is(err, ErrAllFailed) {
		t.Errorf("Check = %v, want ErrAllFailed", err)
	}
	if g.Len() != 1 || g.Primary() != "only" {
		t.Errorf("Len/Primary = %d/%q", g.Len(), g.Primary())
	}
}
