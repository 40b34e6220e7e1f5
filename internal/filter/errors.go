package filter

import (
	"errors"
	"fmt"

	"github.com/tkingovr/procfilter/internal/runner"
)

// ErrMultidropRequired is returned by filters that need the envelope
// sender and recipient when the message does not carry them.
var ErrMultidropRequired = errors.New("message envelope required; use a multidrop retriever")

// ConfigurationError reports an invalid filter configuration. A filter that
// fails with it must not be used.
type ConfigurationError struct {
	Filter string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Filter == "" {
		return fmt.Sprintf("filter configuration: %v", e.Err)
	}
	return fmt.Sprintf("filter %s: configuration: %v", e.Filter, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(filter string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Filter: filter, Err: fmt.Errorf(format, args...)}
}

// PrivilegeError reports a refusal to run a command as the superuser.
type PrivilegeError = runner.PrivilegeError

// ExecutionError reports a filter run whose outcome rejects the message:
// an exit code outside the keep and drop sets, output on stderr without
// ignore_stderr, or a command that could not be run at all.
type ExecutionError struct {
	Filter   string
	ExitCode int
	Stderr   string
	// Accepted is set when the exit code was in the keep set and the
	// failure comes from stderr output alone.
	Accepted bool
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Accepted {
		return fmt.Sprintf("filter %s returned %d but wrote to stderr: %s", e.Filter, e.ExitCode, e.Stderr)
	}
	if e.ExitCode < 0 {
		return fmt.Sprintf("filter %s failed: %v", e.Filter, e.Err)
	}

	msg := fmt.Sprintf("filter %s returned %d", e.Filter, e.ExitCode)
	if e.Stderr != "" {
		msg += " (" + e.Stderr + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }
