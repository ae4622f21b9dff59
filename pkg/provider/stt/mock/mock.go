// Package mock provides a test double for the stt package interface.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "көмекші сәлем"}}
//	tr, _ := p.Transcribe(ctx, rec, stt.Options{})
//	if p.CallCount() != 1 { ... }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/komekshi/pkg/audio"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	Ctx       context.Context
	Recording audio.Recording
	Opts      stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Results is empty.
	Result stt.Transcript

	// Results, if non-empty, are returned one per call in order; the last
	// entry repeats once exhausted.
	Results []stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if set, replaces the canned behaviour entirely.
	TranscribeFunc func(ctx context.Context, rec audio.Recording, opts stt.Options) (stt.Transcript, error)

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, rec audio.Recording, opts stt.Options) (stt.Transcript, error) {
	p.mu.Lock()
	n := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Recording: rec, Opts: opts})
	fn := p.TranscribeFunc
	res, err := p.Result, p.Err
	if len(p.Results) > 0 {
		res = p.Results[min(n, len(p.Results)-1)]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, rec, opts)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return res, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
