package api

import "time"

// Verdict represents the outcome of evaluating a filter's exit status.
type Verdict string

const (
	VerdictKeep  Verdict = "keep"  // pass the message on
	VerdictDrop  Verdict = "drop"  // drop the message silently
	VerdictError Verdict = "error" // fail the message with a filter error
)

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictKeep, VerdictDrop, VerdictError:
		return true
	}
	return false
}

// AuditRecord represents a single filter invocation.
type AuditRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Filter    string        `json:"filter"`
	Type      string        `json:"type,omitempty"`
	Sender    string        `json:"sender,omitempty"`
	Recipient string        `json:"recipient,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Verdict   Verdict       `json:"verdict"`
	Rule      string        `json:"rule,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// CheckRequest is used by the CLI `check` command.
type CheckRequest struct {
	Filter   string `json:"filter"`
	ExitCode int    `json:"exit_code"`
	Stderr   string `json:"stderr,omitempty"`
}

// CheckResponse is the result of a dry-run policy check.
type CheckResponse struct {
	Filter  string  `json:"filter"`
	Verdict Verdict `json:"verdict"`
	Rule    string  `json:"rule,omitempty"`
	Message string  `json:"message,omitempty"`
}
