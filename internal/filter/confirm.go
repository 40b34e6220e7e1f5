package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tkingovr/procfilter/internal/message"
	"github.com/tkingovr/procfilter/internal/runner"
)

// TMDA consults a confirmation gateway such as tmda-filter. The gateway only
// decides the verdict; the message is passed on unchanged.
type TMDA struct {
	command
}

// NewTMDA validates cfg and builds a confirmation-gateway filter.
func NewTMDA(cfg Config, r *runner.Runner) (*TMDA, error) {
	opts, err := newOptions(cfg, TypeTMDA)
	if err != nil {
		return nil, err
	}
	return &TMDA{command{opts: opts, runner: r}}, nil
}

func (f *TMDA) Execute(ctx context.Context, msg *message.Message) (*Outcome, error) {
	if !msg.HasSender || msg.Recipient == "" {
		return nil, &ConfigurationError{Filter: f.opts.Name, Err: ErrMultidropRequired}
	}

	stdin, err := msg.Flatten(message.FlattenOptions{
		DeliveredTo: true,
		Received:    true,
		IncludeFrom: true,
		LineEnding:  message.CRLF,
	})
	if err != nil {
		return nil, fmt.Errorf("flattening message for %s: %w", f.opts.Name, err)
	}

	res, err := f.spawn(ctx, stdin, nil, gatewayEnv(msg, f.opts.ConfBreak))
	if err != nil {
		return nil, err
	}
	out := outcomeOf(res)
	if res.SetupErr == nil {
		out.Message = msg
	}
	return out, nil
}

func gatewayEnv(msg *message.Message, confBreak string) map[string]string {
	return map[string]string{
		"SENDER":    msg.Sender,
		"RECIPIENT": msg.Recipient,
		"EXT":       extension(message.Local(msg.Recipient), confBreak),
	}
}

// extension returns what follows the first separator in local, e.g.
// "ext1-ext2" for "user-ext1-ext2".
func extension(local, sep string) string {
	parts := strings.Split(local, sep)
	return strings.Join(parts[1:], sep)
}
