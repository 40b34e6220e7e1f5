package filter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkingovr/procfilter/api"
	"github.com/tkingovr/procfilter/internal/message"
)

// Recorder observes every filter invocation of a chain.
type Recorder interface {
	Write(ctx context.Context, record *api.AuditRecord) error
}

// Chain executes a sequence of filters in order.
type Chain struct {
	filters   []Filter
	recorders []Recorder
	logger    *slog.Logger
}

// NewChain creates a new filter chain.
func NewChain(logger *slog.Logger, filters ...Filter) *Chain {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Chain{
		filters: filters,
		logger:  logger,
	}
}

// Process runs all filters in sequence. The message returned by one filter
// is the input of the next; a drop ends the chain and returns nil.
func (c *Chain) Process(ctx context.Context, msg *message.Message, prov message.Provenance) (*message.Message, error) {
	for _, f := range c.filters {
		sender, recipient := msg.Sender, msg.Recipient
		out, rep, err := filterMessage(ctx, f, msg, prov, c.logger)
		c.record(ctx, f, sender, recipient, rep, err)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.Name(), err)
		}
		c.logger.Debug("filter executed",
			"filter", f.Name(),
			"exit_code", rep.ExitCode,
			"verdict", rep.Verdict,
		)
		if out == nil {
			return nil, nil
		}
		msg = out
	}
	return msg, nil
}

func (c *Chain) record(ctx context.Context, f Filter, sender, recipient string, rep *Report, err error) {
	if len(c.recorders) == 0 {
		return
	}
	rec := &api.AuditRecord{
		Timestamp: time.Now(),
		Filter:    f.Name(),
		Type:      string(f.Options().Type),
		Sender:    sender,
		Recipient: recipient,
		ExitCode:  rep.ExitCode,
		Verdict:   rep.Verdict,
		Rule:      rep.Rule,
		Stderr:    rep.Stderr,
		Duration:  rep.Duration,
	}
	if err != nil {
		rec.Verdict = api.VerdictError
		rec.Error = err.Error()
	}
	for _, r := range c.recorders {
		if werr := r.Write(ctx, rec); werr != nil {
			c.logger.Warn("recording filter invocation failed",
				"filter", f.Name(),
				"error", werr,
			)
		}
	}
}

// AddFilter appends a filter to the chain.
func (c *Chain) AddFilter(f Filter) {
	c.filters = append(c.filters, f)
}

// AddRecorder registers an observer for every invocation.
func (c *Chain) AddRecorder(r Recorder) {
	c.recorders = append(c.recorders, r)
}

// Filters returns the filters in execution order.
func (c *Chain) Filters() []Filter {
	return append([]Filter(nil), c.filters...)
}
