package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func readyz(t *testing.T, h *Handler) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func pass(context.Context) error { return nil }

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New(Checker{Name: "x", Check: func(context.Context) error { return errors.New("down") }}).
		Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		checkers []Checker
		code     int
		status   string
		checks   map[string]string
	}{
		{
			name:   "no checkers",
			code:   http.StatusOK,
			status: StatusOK,
		},
		{
			name:     "all pass",
			checkers: []Checker{{Name: "answers", Check: pass}, {Name: "stt", Check: pass}},
			code:     http.StatusOK,
			status:   StatusOK,
			checks:   map[string]string{"answers": "ok", "stt": "ok"},
		},
		{
			name:     "required fails",
			checkers: []Checker{{Name: "answers", Check: pass}, {Name: "stt", Check: down}},
			code:     http.StatusServiceUnavailable,
			status:   StatusFail,
			checks:   map[string]string{"answers": "ok", "stt": "fail: connection refused"},
		},
		{
			name:     "optional fails",
			checkers: []Checker{{Name: "answers", Check: pass}, {Name: "postgres", Optional: true, Check: down}},
			code:     http.StatusOK,
			status:   StatusDegraded,
			checks:   map[string]string{"postgres": "fail: connection refused"},
		},
		{
			name: "required wins over optional",
			checkers: []Checker{
				{Name: "postgres", Optional: true, Check: down},
				{Name: "stt", Check: down},
			},
			code:   http.StatusServiceUnavailable,
			status: StatusFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tt.checkers...))
			if code != tt.code {
				t.Errorf("code = %d, want %d", code, tt.code)
			}
			if body.Status != tt.status {
				t.Errorf("status = %q, want %q", body.Status, tt.status)
			}
			for k, v := range tt.checks {
				if body.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow}, Checker{Name: "c", Check: slow})

	start := time.Now()
	code, _ := readyz(t, h)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if d := time.Since(start); d > 550*time.Millisecond {
		t.Errorf("readyz took %v, checks look sequential", d)
	}
}

func TestReadyz_RespectsRequestCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "postgres", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New().Register(mux)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

// ─── Checkers ─────────────────────────────────────────────────────────────────

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestCheckers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name    string
		checker Checker
		wantErr bool
	}{
		{"ping ok", Ping("postgres", fakePinger{}, true), false},
		{"ping fails", Ping("postgres", fakePinger{err: boom}, true), true},
		{"ping unconfigured", Ping("postgres", nil, true), false},
		{"configured", Configured("stt", struct{}{}), false},
		{"not configured", Configured("stt", nil), true},
		{"count reached", MinCount("answers", 1, func() int { return 3 }), false},
		{"count short", MinCount("answers", 1, func() int { return 0 }), true},
		{"healthy", NotDegraded("history", func() bool { return false }), false},
		{"degraded", NotDegraded("history", func() bool { return true }), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.checker.Check(ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if !NotDegraded("history", nil).Optional {
		t.Error("NotDegraded should be optional")
	}
}
