// Package filter hands messages to external programs and interprets what
// they return: a replacement message, annotation lines, or only an exit
// status deciding whether the message is kept, dropped or failed.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkingovr/procfilter/api"
	"github.com/tkingovr/procfilter/internal/message"
	"github.com/tkingovr/procfilter/internal/policy"
)

// Filter is a single external-program step in the message pipeline.
type Filter interface {
	// Name returns the filter name for logging.
	Name() string

	// String describes the filter and its command.
	String() string

	// ConfString renders the validated configuration.
	ConfString() string

	// Options returns the configuration the filter was built with.
	Options() *Options

	// Execute runs the external program on msg. It reports the raw outcome;
	// classifying it is left to FilterMessage.
	Execute(ctx context.Context, msg *message.Message) (*Outcome, error)
}

// Outcome is what one Execute call produced.
type Outcome struct {
	PID      int
	ExitCode int
	// Message is the resulting message; nil when ParseErr is set.
	Message *message.Message
	Stderr  string
	// SetupErr is set when the command never ran.
	SetupErr error
	// ParseErr is set when the output could not be read back as a message.
	ParseErr error
}

// Report summarizes one pass through FilterMessage for auditing.
type Report struct {
	ExitCode int
	Verdict  api.Verdict
	Rule     string
	Stderr   string
	Duration time.Duration
}

// FilterMessage runs f on msg and applies the outcome policy. It returns the
// message to pass on, or nil when the filter dropped it.
func FilterMessage(ctx context.Context, f Filter, msg *message.Message, prov message.Provenance, logger *slog.Logger) (*message.Message, error) {
	out, _, err := filterMessage(ctx, f, msg, prov, logger)
	return out, err
}

func filterMessage(ctx context.Context, f Filter, msg *message.Message, prov message.Provenance, logger *slog.Logger) (*message.Message, *Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	start := time.Now()
	opts := f.Options()
	rep := &Report{Verdict: api.VerdictError, ExitCode: -1}
	defer func() { rep.Duration = time.Since(start) }()

	msg.SetProvenance(prov)
	before := msg.HeaderCount()

	out, err := f.Execute(ctx, msg)
	if err != nil {
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			rep.ExitCode = execErr.ExitCode
		}
		return nil, rep, err
	}
	rep.ExitCode = out.ExitCode
	rep.Stderr = out.Stderr

	if out.SetupErr != nil {
		return nil, rep, &ExecutionError{
			Filter:   opts.Name,
			ExitCode: out.ExitCode,
			Stderr:   out.Stderr,
			Err:      out.SetupErr,
		}
	}

	res, err := opts.Engine.Evaluate(ctx, &policy.EvalInput{
		Filter:   opts.Name,
		ExitCode: out.ExitCode,
		Stderr:   out.Stderr,
	})
	if err != nil {
		return nil, rep, fmt.Errorf("evaluating outcome of %s: %w", opts.Name, err)
	}
	rep.Verdict = res.Verdict
	rep.Rule = res.Rule

	switch res.Verdict {
	case api.VerdictDrop:
		logger.Debug("filter dropped message",
			slog.String("filter", opts.Name),
			slog.Int("exit_code", out.ExitCode),
		)
		return nil, rep, nil
	case api.VerdictKeep:
	default:
		var reason error
		if res.Message != "" {
			reason = errors.New(res.Message)
		}
		return nil, rep, &ExecutionError{
			Filter:   opts.Name,
			ExitCode: out.ExitCode,
			Stderr:   out.Stderr,
			Err:      reason,
		}
	}

	if out.Stderr != "" {
		if !opts.IgnoreStderr {
			rep.Verdict = api.VerdictError
			return nil, rep, &ExecutionError{
				Filter:   opts.Name,
				ExitCode: out.ExitCode,
				Stderr:   out.Stderr,
				Accepted: true,
			}
		}
		logger.Info("filter wrote to stderr",
			slog.String("filter", opts.Name),
			slog.Int("exit_code", out.ExitCode),
			slog.String("stderr", out.Stderr),
		)
	}

	if out.ParseErr != nil {
		rep.Verdict = api.VerdictError
		return nil, rep, &ExecutionError{
			Filter:   opts.Name,
			ExitCode: out.ExitCode,
			Err:      fmt.Errorf("reading filtered message: %w", out.ParseErr),
		}
	}

	if after := out.Message.HeaderCount(); after < before && !opts.IgnoreHeaderShrinkage {
		logger.Warn("filter returned fewer headers than it was given",
			slog.String("filter", opts.Name),
			slog.Int("before", before),
			slog.Int("after", after),
		)
	}

	out.Message.CopyAttrs(msg)
	return out.Message, rep, nil
}
