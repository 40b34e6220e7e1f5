package filter

import (
	"bytes"
	"context"

	"github.com/tkingovr/procfilter/internal/message"
	"github.com/tkingovr/procfilter/internal/runner"
)

// ClassifierHeader names the fields a classifier's output lines are
// recorded under.
const ClassifierHeader = "X-getmail-filter-classifier"

// Classifier runs like External but treats each non-blank output line as an
// annotation on the original message.
type Classifier struct {
	External
}

// NewClassifier validates cfg and builds a classifier filter.
func NewClassifier(cfg Config, r *runner.Runner) (*Classifier, error) {
	opts, err := newOptions(cfg, TypeClassifier)
	if err != nil {
		return nil, err
	}
	return &Classifier{External{command{opts: opts, runner: r}}}, nil
}

func (f *Classifier) Execute(ctx context.Context, msg *message.Message) (*Outcome, error) {
	res, err := f.run(ctx, msg)
	if err != nil {
		return nil, err
	}
	out := outcomeOf(res)
	if res.SetupErr != nil {
		return out, nil
	}

	for _, line := range bytes.Split(res.Stdout, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		msg.AddHeader(ClassifierHeader, message.DecodeText(line))
	}
	out.Message = msg
	return out, nil
}
