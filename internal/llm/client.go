// Package llm is the narrow boundary to the language model: text in,
// text or JSON out, classified errors.
package llm

import "context"

// CompletionRequest is one model call.
type CompletionRequest struct {
	System string
	User   string
	Model  string // optional override of the client default
	JSON   bool   // ask for a JSON object response
}

// Client is the model contract consumed by the executor. Implementations
// must honor ctx cancellation and return classified errors (see Classify).
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NoMessageSentinel is what a persona answers when it decides to stay
// silent: a heartbeat or reply request that produces this exact marker is
// treated as a successful empty response.
const NoMessageSentinel = "[NO_MESSAGE]"
