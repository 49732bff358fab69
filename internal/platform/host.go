package platform

import (
	"context"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/project"
)

// HostID names the platform building for the machine running dinghy.
const HostID = "host"

// HostPlatform builds natively with no cross steering.
type HostPlatform struct {
	Env map[string]string
	Options
}

var _ Platform = (*HostPlatform)(nil)

func NewHost(opts Options) *HostPlatform {
	return &HostPlatform{Options: opts}
}

func (p *HostPlatform) ID() string          { return HostID }
func (p *HostPlatform) Triple() arch.Triple { return "" }
func (p *HostPlatform) Kind() Kind          { return KindHost }

func (p *HostPlatform) IsCompatibleWith(target Target) bool {
	return target.IsCompatibleWith(p)
}

func (p *HostPlatform) Build(ctx context.Context, proj *project.Project, args build.Args) (build.Build, error) {
	p.logger().Debug("building for host", "mode", string(args.Mode))
	return p.Compiler.Build(ctx, build.CompileRequest{
		ProjectRoot: proj.Root,
		Args:        args,
		Env:         freshEnv(p.Env),
	})
}

func (p *HostPlatform) Strip(ctx context.Context, b build.Build) error {
	return stripRunnables(ctx, p.Runner, p.logger().With("platform", HostID), b, "strip")
}
