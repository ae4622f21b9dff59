// Package mock provides a test double for the answer.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Reply: answer.Reply{ScreenText: "weather (rules)"}}
//	reply, _ := p.Ask(ctx, "ауа райы")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/komekshi/pkg/provider/answer"
)

// AskCall records a single invocation of Provider.Ask.
type AskCall struct {
	Ctx  context.Context
	Text string
}

// Provider is a mock implementation of answer.Provider.
type Provider struct {
	mu sync.Mutex

	// Reply is returned by Ask.
	Reply answer.Reply

	// Err, if non-nil, is returned as the error from Ask.
	Err error

	// AskFunc, if set, replaces the canned behaviour entirely. It is called
	// without the mock's lock held, so it may block.
	AskFunc func(ctx context.Context, text string) (answer.Reply, error)

	// Calls records every call to Ask.
	Calls []AskCall
}

// Ask records the call and returns the configured reply.
func (p *Provider) Ask(ctx context.Context, text string) (answer.Reply, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, AskCall{Ctx: ctx, Text: text})
	fn := p.AskFunc
	reply, err := p.Reply, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return answer.Reply{}, err
	}
	return reply, nil
}

// Texts returns the text of every recorded call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// CallCount returns the number of recorded calls.
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

var _ answer.Provider = (*Provider)(nil)
