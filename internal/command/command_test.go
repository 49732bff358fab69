package command

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/cochaviz/dinghy/internal/errdefs"
)

func TestExecRunnerOutput(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	runner := NewExecRunner(nil)
	out, err := runner.Output(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo $GREETING"},
		Env:  []string{"GREETING=hello"},
	})
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "hello" {
		t.Fatalf("Output() = %q, want %q", got, "hello")
	}
}

func TestExecRunnerReportsExitCode(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	runner := NewExecRunner(nil)
	err := runner.Run(context.Background(), New("sh", "-c", "exit 3"))

	var transport *errdefs.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("Run() error = %v, want TransportError", err)
	}
	if transport.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", transport.ExitCode)
	}
	if !errors.Is(err, errdefs.ErrTransport) {
		t.Fatalf("errors.Is(err, ErrTransport) = false")
	}
}

func TestExecRunnerMissingProgram(t *testing.T) {
	t.Parallel()

	runner := NewExecRunner(nil)
	if Succeeds(context.Background(), runner, New("dinghy-definitely-missing-tool", "--version")) {
		t.Fatalf("Succeeds() = true for a missing program")
	}
}

func TestCommandString(t *testing.T) {
	t.Parallel()

	cmd := New("adb", "-s", "emulator-5554", "push", "a", "b")
	if got := cmd.String(); got != "adb -s emulator-5554 push a b" {
		t.Fatalf("String() = %q", got)
	}
}
