package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cochaviz/dinghy/internal/logging"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for input, want := range cases {
		got, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := parseLogLevel("loud"); err == nil {
		t.Fatalf("parseLogLevel(loud) expected error")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	root := newRootCommand(logging.NewCLI(io.Discard, nil), &level)

	for _, name := range []string{"devices", "platforms", "build", "run", "test", "bench", "bundle", "clean"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("root.Find(%q) = %v, %v", name, cmd, err)
		}
	}
	for _, flag := range []string{"platform", "device", "log-level", "config"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Fatalf("missing persistent flag --%s", flag)
		}
	}
}

func TestLogLevelFlagAppliesBeforeRun(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	root := newRootCommand(logging.NewCLI(io.Discard, nil), &level)
	if err := root.ParseFlags([]string{"--log-level", "debug"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	if err := root.PersistentPreRunE(root, nil); err != nil {
		t.Fatalf("PersistentPreRunE() error = %v", err)
	}
	if level.Level() != slog.LevelDebug {
		t.Fatalf("level = %v, want debug", level.Level())
	}
}

func TestOpenSessionReadsConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dinghy.toml")
	if err := os.WriteFile(path, []byte("[ssh_devices.pi]\nusername = \"pi\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := openSession(context.Background(), logging.NewCLI(io.Discard, nil), &globalOptions{config: path})
	if err == nil || !strings.Contains(err.Error(), "has no hostname") {
		t.Fatalf("openSession() error = %v, want the config file's validation error", err)
	}
}
