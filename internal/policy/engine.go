package policy

import "context"

// Engine decides what a filter's exit status means for the message.
type Engine interface {
	// Evaluate maps the observed outcome of one filter run to a verdict.
	Evaluate(ctx context.Context, input *EvalInput) (*EvalResult, error)
}
