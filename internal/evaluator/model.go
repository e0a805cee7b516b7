package evaluator

import "context"

// ModelRequest is a single-turn completion request to a judge model.
type ModelRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ModelResponse is the model's completion text.
type ModelResponse struct {
	Content string
}

// ModelClient is the narrow model surface judge evaluators depend on.
// The runner adapts a provider backend to this interface.
type ModelClient interface {
	Complete(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
	DefaultModel() string
}
