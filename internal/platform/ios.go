package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/project"
	"github.com/cochaviz/dinghy/internal/toolchain"
)

// IosTriples are the Apple mobile targets offered on macOS hosts.
var IosTriples = []arch.Triple{"aarch64-apple-ios", "aarch64-apple-ios-sim", "x86_64-apple-ios"}

// IosPlatform builds against an Xcode SDK located with xcrun.
type IosPlatform struct {
	id     string
	triple arch.Triple
	Options
}

var _ Platform = (*IosPlatform)(nil)

func NewIos(id string, triple arch.Triple, opts Options) *IosPlatform {
	return &IosPlatform{id: id, triple: triple, Options: opts}
}

// IosPlatforms returns one auto-ios-<suffix> platform per IosTriples entry.
func IosPlatforms(opts Options) []*IosPlatform {
	out := make([]*IosPlatform, 0, len(IosTriples))
	for _, t := range IosTriples {
		suffix := strings.Replace(string(t), "-apple-ios", "", 1)
		out = append(out, NewIos("auto-ios-"+suffix, t, opts))
	}
	return out
}

func (p *IosPlatform) ID() string          { return p.id }
func (p *IosPlatform) Triple() arch.Triple { return p.triple }
func (p *IosPlatform) Kind() Kind          { return KindIos }

func (p *IosPlatform) IsCompatibleWith(target Target) bool {
	return target.IsCompatibleWith(p)
}

// SDK returns the xcrun SDK name of the platform.
func (p *IosPlatform) SDK() string {
	if p.triple.IsSimulator() {
		return "iphonesimulator"
	}
	return "iphoneos"
}

func (p *IosPlatform) sysroot(ctx context.Context) (string, error) {
	out, err := p.Runner.Output(ctx, command.New("xcrun", "--sdk", p.SDK(), "--show-sdk-path"))
	if err != nil {
		return "", fmt.Errorf("locate %s sdk: %w", p.SDK(), err)
	}
	sysroot := strings.TrimSpace(string(out))
	if sysroot == "" {
		return "", fmt.Errorf("xcrun returned an empty %s sdk path", p.SDK())
	}
	return sysroot, nil
}

func (p *IosPlatform) Build(ctx context.Context, proj *project.Project, args build.Args) (build.Build, error) {
	logger := p.logger().With("platform", p.id, "triple", p.triple.String())
	sysroot, err := p.sysroot(ctx)
	if err != nil {
		return build.Build{}, err
	}
	logger.Debug("using sdk", "sysroot", sysroot)

	env := freshEnv(nil)
	shims := toolchain.NewShims(proj.Root, p.triple, p.id)
	if err := shims.SetupCC(env, "xcrun --sdk "+p.SDK()+" clang"); err != nil {
		return build.Build{}, err
	}
	if err := shims.SetupLinker(env, "cc -isysroot "+toolchain.Quote(sysroot)); err != nil {
		return build.Build{}, err
	}
	shims.SetupSysroot(env, sysroot)

	return p.Compiler.Build(ctx, build.CompileRequest{
		ProjectRoot: proj.Root,
		Triple:      p.triple,
		Args:        args,
		Env:         env,
	})
}

func (p *IosPlatform) Strip(ctx context.Context, b build.Build) error {
	return stripRunnables(ctx, p.Runner, p.logger().With("platform", p.id), b, "xcrun", "strip")
}
