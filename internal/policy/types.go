package policy

import "github.com/tkingovr/procfilter/api"

// EvalInput is what a policy engine sees of a finished filter run.
type EvalInput struct {
	Filter   string `json:"filter"`
	ExitCode int    `json:"exit_code"`
	Stderr   string `json:"stderr,omitempty"`
}

// EvalResult is the output of a policy engine evaluation.
type EvalResult struct {
	Verdict api.Verdict `json:"verdict"`
	Rule    string      `json:"rule,omitempty"`
	Message string      `json:"message,omitempty"`
}
