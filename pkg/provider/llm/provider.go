// Package llm defines the Provider interface for Large Language Model backends.
//
// Komekshi uses an LLM for one narrow job: mapping a free-form query onto one
// of the tags of the answer index when the keyword rules find nothing. The
// interface therefore only exposes a blocking completion.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional instruction injected before Messages as a
	// "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness. Nil means the provider default;
	// classifiers pass Temp(0) to request greedy decoding.
	Temperature *float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier requests are sent to.
	Model() string
}

// Temp returns a pointer to t for use as CompletionRequest.Temperature.
func Temp(t float64) *float64 {
	return &t
}
