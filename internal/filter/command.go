package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/tkingovr/procfilter/internal/runner"
)

// command holds what every variant needs to spawn its program.
type command struct {
	opts   *Options
	runner *runner.Runner
}

func (c *command) Name() string       { return c.opts.Name }
func (c *command) Options() *Options  { return c.opts }
func (c *command) ConfString() string { return c.opts.confString() }

func (c *command) String() string {
	return fmt.Sprintf("%s %s (%s)", c.opts.Type, c.opts.Name, c.opts.Path)
}

// spawn runs the program once. The root gate is checked before anything is
// created, so a refusal has no side effect.
func (c *command) spawn(ctx context.Context, stdin []byte, args []string, env map[string]string) (*runner.Result, error) {
	if err := runner.CheckRoot(c.runner.Privileges(), c.opts.Path, c.opts.AllowRootCommands, c.opts.User); err != nil {
		return nil, err
	}

	res, err := c.runner.Run(ctx, &runner.Invocation{
		Path:  c.opts.Path,
		Args:  args,
		Env:   env,
		Stdin: stdin,
		User:  c.opts.User,
		Group: c.opts.Group,
	})
	if err != nil {
		var sigErr *runner.SignalError
		if errors.As(err, &sigErr) {
			return nil, &ExecutionError{Filter: c.opts.Name, ExitCode: -1, Err: err}
		}
		return nil, fmt.Errorf("running %s: %w", c.opts.Command, err)
	}
	return res, nil
}

func outcomeOf(res *runner.Result) *Outcome {
	return &Outcome{
		PID:      res.PID,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		SetupErr: res.SetupErr,
	}
}
