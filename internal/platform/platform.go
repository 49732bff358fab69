package platform

import (
	"context"
	"log/slog"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/buildenv"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/logging"
	"github.com/cochaviz/dinghy/internal/project"
)

// Kind is the closed set of platform variants.
type Kind int

const (
	KindRegular Kind = iota
	KindHost
	KindIos
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindIos:
		return "ios"
	default:
		return "regular"
	}
}

// Platform is a buildable target.
type Platform interface {
	ID() string
	// Triple is empty for the host platform.
	Triple() arch.Triple
	Kind() Kind
	// Build steers the environment towards the target and delegates to the
	// build collaborator.
	Build(ctx context.Context, p *project.Project, args build.Args) (build.Build, error)
	// Strip removes symbols from every runnable. Failures are reported but
	// leave the binaries usable.
	Strip(ctx context.Context, b build.Build) error
	IsCompatibleWith(target Target) bool
}

// Target is the device side of the compatibility check.
type Target interface {
	IsCompatibleWith(p Platform) bool
}

// Options carries the collaborators shared by every platform.
type Options struct {
	Compiler build.Compiler
	Runner   command.Runner
	Logger   *slog.Logger
	// Home holds the user-level overlay directory.
	Home string
}

func (o Options) logger() *slog.Logger {
	return logging.Ensure(o.Logger)
}

// freshEnv snapshots the process environment without the library search
// paths of the host, which must not reach a cross build.
func freshEnv(extra map[string]string) *buildenv.Env {
	env := buildenv.FromOS()
	env.Unset("LIBRARY_PATH", "LD_LIBRARY_PATH")
	env.Merge(extra)
	return env
}
