package cargo

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/logging"
)

// Compiler drives cargo and collects its artifacts from the JSON message stream.
type Compiler struct {
	Runner  command.Runner
	Program string
	Logger  *slog.Logger
}

var _ build.Compiler = (*Compiler)(nil)

// New returns a Compiler running cargo through runner.
func New(runner command.Runner, logger *slog.Logger) *Compiler {
	return &Compiler{Runner: runner, Program: "cargo", Logger: logger}
}

func (c *Compiler) logger() *slog.Logger {
	return logging.Ensure(c.Logger)
}

// Build runs cargo for request and returns the produced runnables.
func (c *Compiler) Build(ctx context.Context, request build.CompileRequest) (build.Build, error) {
	cmd := command.Command{
		Name:   c.Program,
		Args:   Arguments(request),
		Dir:    request.ProjectRoot,
		Stderr: os.Stderr,
	}
	if request.Env != nil {
		cmd.Env = request.Env.Environ()
	}

	c.logger().Info("compiling", "mode", string(request.Args.Mode), "triple", request.Triple.String(), "release", request.Args.Release)
	out, err := c.Runner.Output(ctx, cmd)
	if err != nil {
		return build.Build{}, fmt.Errorf("cargo %s: %w", request.Args.Mode, err)
	}

	result, err := ParseMessages(bytes.NewReader(out))
	if err != nil {
		return build.Build{}, err
	}
	result.TargetDir = TargetDir(request)
	c.logger().Debug("compilation finished", "runnables", len(result.Runnables), "dynamic_libraries", len(result.DynamicLibraries))
	return result, nil
}

// Arguments renders the cargo command line for request.
func Arguments(request build.CompileRequest) []string {
	var args []string
	switch request.Args.Mode {
	case build.ModeTest:
		args = append(args, "test", "--no-run")
	case build.ModeBench:
		args = append(args, "bench", "--no-run")
	default:
		args = append(args, "build")
	}
	if request.Triple != "" {
		args = append(args, "--target", request.Triple.String())
	}
	args = append(args, "--message-format=json-render-diagnostics")
	if request.Args.Release {
		args = append(args, "--release")
	}
	if request.Args.Verbose {
		args = append(args, "-v")
	}
	for _, pkg := range request.Args.Packages {
		args = append(args, "-p", pkg)
	}
	return append(args, request.Args.Extra...)
}

// TargetDir returns the profile output directory of request.
func TargetDir(request build.CompileRequest) string {
	profile := "debug"
	if request.Args.Release || request.Args.Mode == build.ModeBench {
		profile = "release"
	}
	if request.Triple == "" {
		return filepath.Join(request.ProjectRoot, "target", profile)
	}
	return filepath.Join(request.ProjectRoot, "target", request.Triple.String(), profile)
}

type message struct {
	Reason       string `json:"reason"`
	ManifestPath string `json:"manifest_path"`
	Target       struct {
		Name string   `json:"name"`
		Kind []string `json:"kind"`
	} `json:"target"`
	Executable *string  `json:"executable"`
	Filenames  []string `json:"filenames"`
}

// ParseMessages extracts runnables and shared libraries from cargo's
// --message-format=json output. Non-JSON lines are ignored.
func ParseMessages(r io.Reader) (build.Build, error) {
	var result build.Build
	seenLibs := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			return build.Build{}, fmt.Errorf("decode cargo message: %w", err)
		}
		if msg.Reason != "compiler-artifact" {
			continue
		}
		if msg.Executable != nil && *msg.Executable != "" {
			result.Runnables = append(result.Runnables, build.Runnable{
				ID:     msg.Target.Name,
				Exe:    *msg.Executable,
				Source: filepath.Dir(msg.ManifestPath),
			})
		}
		if !isDylib(msg.Target.Kind) {
			continue
		}
		for _, f := range msg.Filenames {
			if strings.HasSuffix(f, ".so") && !seenLibs[f] {
				seenLibs[f] = true
				result.DynamicLibraries = append(result.DynamicLibraries, f)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return build.Build{}, fmt.Errorf("read cargo output: %w", err)
	}
	return result, nil
}

func isDylib(kinds []string) bool {
	for _, k := range kinds {
		if k == "dylib" || k == "cdylib" {
			return true
		}
	}
	return false
}
