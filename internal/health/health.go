// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz runs
// every registered [Checker] and answers 503 when a required one fails.
// Optional checkers (the dialogue history, for instance) only mark the
// response as degraded.
//
// Bodies are JSON: {"status": "ok"|"degraded"|"fail", "checks": {name: result}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Response statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable.
type Checker struct {
	// Name keys the result in the response (e.g. "answers", "postgres").
	Name string

	// Optional checkers never fail readiness; a failure reports "degraded".
	Optional bool

	// Check probes the dependency. It must respect ctx.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a Handler running checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, 0, len(checkers))
	for _, ch := range checkers {
		if ch.Check != nil {
			c = append(c, ch)
		}
	}
	return &Handler{checkers: c}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: StatusOK})
}

// Readyz runs all checkers concurrently, each under its own [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	res := result{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] == nil {
			res.Checks[c.Name] = StatusOK
			continue
		}
		res.Checks[c.Name] = "fail: " + errs[i].Error()
		switch {
		case !c.Optional:
			res.Status = StatusFail
			code = http.StatusServiceUnavailable
		case res.Status == StatusOK:
			res.Status = StatusDegraded
		}
	}
	writeJSON(w, code, res)
}

// Register adds GET /healthz and GET /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
