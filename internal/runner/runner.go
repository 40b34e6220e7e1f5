// Package runner executes one external command with a message on its
// standard input, collecting standard output and standard error through
// private temporary files.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// ExitSetupFailure is the exit status reserved for a child that could not be
// prepared: identity lookup, stdin setup, privilege drop or exec failed. The
// target program never ran, so the status carries no application meaning.
const ExitSetupFailure = 127

// Invocation describes one run of an external command.
type Invocation struct {
	// Path is the executable. It is run directly, never through a shell.
	Path string
	// Args is the already substituted argument tail.
	Args []string
	// Env overlays the inherited environment; nil inherits it unchanged.
	Env map[string]string
	// Stdin is the serialized message.
	Stdin []byte
	// User and Group select the run-as identity; empty keeps the current one.
	User  string
	Group string
}

// Result is what the parent observes of a terminated child.
type Result struct {
	PID      int
	ExitCode int
	Stdout   []byte
	// Stderr is the full standard error output with surrounding whitespace removed.
	Stderr string
	// SetupErr is set when ExitCode is ExitSetupFailure because the child
	// could not be prepared.
	SetupErr error
}

// SignalError reports a child that was terminated by a signal instead of
// exiting.
type SignalError struct {
	Path   string
	PID    int
	Signal syscall.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("child %d (%s) killed by signal %d", e.PID, filepath.Base(e.Path), e.Signal)
}

// Runner spawns external commands.
type Runner struct {
	privileges Privileges
	tempDir    string
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTempDir sets the directory for the stdin/stdout/stderr backing files.
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

// NewRunner creates a runner using the given privilege context.
func NewRunner(logger *slog.Logger, priv Privileges, opts ...Option) *Runner {
	if priv == nil {
		priv = OSPrivileges{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Runner{
		privileges: priv,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Privileges returns the privilege context the runner was built with.
func (r *Runner) Privileges() Privileges { return r.privileges }

// Run executes inv and blocks until the child exits. There is no timeout:
// ctx is only consulted before the child is spawned.
func (r *Runner) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stdout, err := r.backingFile("stdout")
	if err != nil {
		return nil, err
	}
	defer stdout.Close()

	stderr, err := r.backingFile("stderr")
	if err != nil {
		return nil, err
	}
	defer stderr.Close()

	cred, err := credential(r.privileges, inv.User, inv.Group)
	if err != nil {
		return setupFailure(err), nil
	}

	stdin, err := r.stdinFile(inv.Stdin)
	if err != nil {
		return setupFailure(err), nil
	}
	defer stdin.Close()

	argv := Argv(inv.Path, inv.Args)
	cmd := &exec.Cmd{
		Path:   argv[0],
		Args:   argv[1:],
		Env:    mergeEnv(inv.Env),
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}
	if cred != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: cred}
	}

	r.logger.Debug("starting external command",
		slog.String("path", inv.Path),
		slog.Any("args", inv.Args),
	)
	if err := cmd.Start(); err != nil {
		return setupFailure(fmt.Errorf("exec of %s failed: %w", filepath.Base(inv.Path), err)), nil
	}
	pid := cmd.Process.Pid
	r.logger.Debug("spawned child", slog.Int("pid", pid))

	exitCode, err := wait(cmd, inv.Path)
	if err != nil {
		return nil, err
	}

	res := &Result{PID: pid, ExitCode: exitCode}
	if res.Stdout, err = rewindAndRead(stdout); err != nil {
		return nil, fmt.Errorf("reading stdout of %s: %w", filepath.Base(inv.Path), err)
	}
	errOut, err := rewindAndRead(stderr)
	if err != nil {
		return nil, fmt.Errorf("reading stderr of %s: %w", filepath.Base(inv.Path), err)
	}
	res.Stderr = strings.TrimSpace(string(errOut))

	r.logger.Debug("external command exited",
		slog.String("command", filepath.Base(inv.Path)),
		slog.Int("pid", pid),
		slog.Int("exit_code", exitCode),
	)
	return res, nil
}

func setupFailure(err error) *Result {
	return &Result{ExitCode: ExitSetupFailure, SetupErr: err}
}

func wait(cmd *exec.Cmd, path string) (int, error) {
	err := cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return 0, fmt.Errorf("waiting for %s: %w", filepath.Base(path), err)
	}

	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 0, &SignalError{Path: path, PID: cmd.Process.Pid, Signal: ws.Signal()}
	}
	return cmd.ProcessState.ExitCode(), nil
}

// backingFile creates an anonymous temporary file: it is unlinked right
// away and lives only as long as the open descriptor.
func (r *Runner) backingFile(purpose string) (*os.File, error) {
	f, err := os.CreateTemp(r.tempDir, "procfilter-"+purpose+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating %s backing file: %w", purpose, err)
	}
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, fmt.Errorf("unlinking %s backing file: %w", purpose, err)
	}
	return f, nil
}

func (r *Runner) stdinFile(data []byte) (*os.File, error) {
	f, err := r.backingFile("stdin")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing message: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("syncing message: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewinding message: %w", err)
	}
	return f, nil
}

func rewindAndRead(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// mergeEnv overlays env on the inherited environment. Later entries win in
// os/exec, so overrides are appended in a stable order.
func mergeEnv(env map[string]string) []string {
	if env == nil {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := os.Environ()
	for _, k := range keys {
		merged = append(merged, k+"="+env[k])
	}
	return merged
}
