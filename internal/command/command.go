package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/cochaviz/dinghy/internal/errdefs"
	"github.com/cochaviz/dinghy/internal/logging"
)

// Command describes a single subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env replaces the child environment when non-nil.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Command for name with args.
func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Argv returns the command line as a slice, program first.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner executes commands. Implementations must report a non-zero exit as
// an *errdefs.TransportError.
type Runner interface {
	// Run executes cmd, streaming output to cmd.Stdout and cmd.Stderr.
	Run(ctx context.Context, cmd Command) error
	// Output executes cmd and returns its standard output.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *slog.Logger
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns an ExecRunner logging through logger.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{Logger: logger}
}

func (r *ExecRunner) logger() *slog.Logger {
	return logging.Ensure(r.Logger)
}

func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := r.prepare(ctx, c)
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return r.wait(c, cmd.Run())
}

func (r *ExecRunner) Output(ctx context.Context, c Command) ([]byte, error) {
	cmd := r.prepare(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}
	err := cmd.Run()
	if err != nil && stderr.Len() > 0 {
		r.logger().Debug("command stderr", "command", c.Name, "stderr", strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), r.wait(c, err)
}

func (r *ExecRunner) prepare(ctx context.Context, c Command) *exec.Cmd {
	r.logger().Debug("running command", "argv", c.Argv(), "dir", c.Dir)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd
}

func (r *ExecRunner) wait(c Command, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &errdefs.TransportError{
			Command:  c.Argv(),
			ExitCode: exitErr.ExitCode(),
			Err:      err,
		}
	}
	return fmt.Errorf("start %s: %w", c.Name, err)
}

// Succeeds reports whether cmd can be started and exits cleanly. It is used
// to probe for optional tools.
func Succeeds(ctx context.Context, runner Runner, cmd Command) bool {
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return runner.Run(ctx, cmd) == nil
}
