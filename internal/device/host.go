package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/buildenv"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/logging"
	"github.com/cochaviz/dinghy/internal/platform"
	"github.com/cochaviz/dinghy/internal/project"
)

// HostDevice runs bundles directly on the machine running dinghy.
type HostDevice struct {
	Runner command.Runner
	Logger *slog.Logger
}

var _ Device = (*HostDevice)(nil)

func (d *HostDevice) logger() *slog.Logger {
	return logging.Ensure(d.Logger).With("device", "host")
}

func (d *HostDevice) ID() string             { return "host" }
func (d *HostDevice) Name() string           { return "host device" }
func (d *HostDevice) Kind() Kind             { return KindHost }
func (d *HostDevice) Triples() []arch.Triple { return nil }

func (d *HostDevice) IsCompatibleWith(p platform.Platform) bool {
	return Compatible(d, p)
}

func (d *HostDevice) BundleApp(_ context.Context, proj *project.Project, b build.Build, runnable build.Runnable) (*BuildBundle, error) {
	return MakeBundle(proj, b, runnable)
}

// InstallApp is a no-op: the staged bundle is already in place.
func (d *HostDevice) InstallApp(_ context.Context, bundle *BuildBundle) (*BuildBundle, error) {
	return bundle, nil
}

func (d *HostDevice) runEnv(installed *BuildBundle, envs []string) []string {
	env := buildenv.FromOS()
	env.Set("DINGHY", "1")
	env.Merge(buildenv.New(envs).Map())
	env.PrependPath("LD_LIBRARY_PATH", installed.LibDir)
	return env.Environ()
}

func (d *HostDevice) RunApp(ctx context.Context, installed *BuildBundle, args []string, envs []string) error {
	d.logger().Info("running", "exe", installed.Exe)
	return d.Runner.Run(ctx, command.Command{
		Name:  installed.Exe,
		Args:  args,
		Dir:   installed.Dir,
		Env:   d.runEnv(installed, envs),
		Stdin: os.Stdin,
	})
}

func (d *HostDevice) DebugApp(ctx context.Context, installed *BuildBundle, args []string, envs []string) error {
	return d.Runner.Run(ctx, command.Command{
		Name:  "gdb",
		Args:  append([]string{"--args", installed.Exe}, args...),
		Dir:   installed.Dir,
		Env:   d.runEnv(installed, envs),
		Stdin: os.Stdin,
	})
}

func (d *HostDevice) CleanApp(_ context.Context, installed *BuildBundle) error {
	if err := os.RemoveAll(installed.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", installed.Dir, err)
	}
	return nil
}

// HostManager always yields the host device.
type HostManager struct {
	Runner command.Runner
	Logger *slog.Logger
}

var _ Manager = (*HostManager)(nil)

func (m *HostManager) Name() string                { return "host" }
func (m *HostManager) Probe(context.Context) error { return nil }

func (m *HostManager) Devices(context.Context) ([]Device, error) {
	return []Device{&HostDevice{Runner: m.Runner, Logger: m.Logger}}, nil
}
