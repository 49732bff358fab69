package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCLIHandlerFormatsAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewCLI(&buf, slog.LevelInfo).With("component", "device")
	logger.WithGroup("ssh").Info("install finished", "host", "pi", "error", errors.New("exit 1"))

	line := buf.String()
	if !strings.HasPrefix(line, "INFO ") {
		t.Fatalf("line = %q, want INFO prefix", line)
	}
	for _, want := range []string{"| install finished", "component=device", "ssh.host=pi", `ssh.error="exit 1"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("line = %q, missing %q", line, want)
		}
	}
}

func TestCLIHandlerRespectsLevelVar(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	level.Set(slog.LevelWarn)

	var buf bytes.Buffer
	logger := NewCLI(&buf, &level)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info record emitted at warn level: %q", buf.String())
	}
	if DebugEnabled(logger) {
		t.Fatalf("DebugEnabled() = true at warn level")
	}

	level.Set(slog.LevelDebug)
	if !DebugEnabled(logger) {
		t.Fatalf("DebugEnabled() = false at debug level")
	}
}

func TestWriterSplitsLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewCLI(&buf, slog.LevelDebug)

	w := NewWriter(logger, slog.LevelDebug, "rsync")
	_, _ = w.Write([]byte("sending incremental file list\nfoo"))
	_, _ = w.Write([]byte("bar\n\ntail"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "line=foobar") {
		t.Fatalf("second line = %q, want joined partial write", lines[1])
	}
	if !strings.Contains(lines[2], "line=tail") {
		t.Fatalf("third line = %q, want flushed tail", lines[2])
	}
}

func TestEnsureFallsBackToDefault(t *testing.T) {
	t.Parallel()

	if Ensure(nil) != slog.Default() {
		t.Fatalf("Ensure(nil) did not return slog.Default()")
	}
}
