package filter

import (
	"context"
	"fmt"

	"github.com/tkingovr/procfilter/internal/message"
	"github.com/tkingovr/procfilter/internal/runner"
)

// External pipes the message through a program and reads its standard
// output back as the replacement message.
type External struct {
	command
}

// NewExternal validates cfg and builds an external filter.
func NewExternal(cfg Config, r *runner.Runner) (*External, error) {
	opts, err := newOptions(cfg, TypeExternal)
	if err != nil {
		return nil, err
	}
	return &External{command{opts: opts, runner: r}}, nil
}

func (f *External) Execute(ctx context.Context, msg *message.Message) (*Outcome, error) {
	res, err := f.run(ctx, msg)
	if err != nil {
		return nil, err
	}
	out := outcomeOf(res)
	if res.SetupErr != nil {
		return out, nil
	}
	out.Message, out.ParseErr = message.ParseBytes(res.Stdout)
	return out, nil
}

// run flattens msg natively and invokes the command with its arguments
// substituted from the envelope.
func (f *External) run(ctx context.Context, msg *message.Message) (*runner.Result, error) {
	stdin, err := msg.Flatten(message.FlattenOptions{
		IncludeFrom: f.opts.Unixfrom,
		LineEnding:  message.LF,
	})
	if err != nil {
		return nil, fmt.Errorf("flattening message for %s: %w", f.opts.Name, err)
	}
	args := runner.Substitute(f.opts.Arguments, messageInfo(msg))
	return f.spawn(ctx, stdin, args, nil)
}

// messageInfo returns the placeholder values available to argument
// templates. Recipient-derived keys exist only when there is a recipient.
func messageInfo(msg *message.Message) map[string]string {
	info := map[string]string{"sender": msg.Sender}
	if msg.Recipient != "" {
		info["recipient"] = msg.Recipient
		info["domain"] = message.Domain(msg.Recipient)
		info["local"] = message.Local(msg.Recipient)
	}
	return info
}
