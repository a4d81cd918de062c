package provider

import "context"

// CompletionRequest describes a single completion call against the external service.
type CompletionRequest struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Credential overrides the client's default API key when set. The deep-search
	// lanes use this to issue calls under their own credentials.
	Credential string
}

// CompletionResult carries the completion text along with token usage as
// reported by the service.
type CompletionResult struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// Client is the contract for the external embedding/completion service.
type Client interface {
	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)

	// Complete issues one completion call. Failures are classified into the
	// RateLimitError / AuthError / TransientError taxonomy in errors.go.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
