package platform

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/overlay"
	"github.com/cochaviz/dinghy/internal/project"
	"github.com/cochaviz/dinghy/internal/toolchain"
)

// RegularPlatform builds with a cross toolchain directory or a Debian
// multiarch toolchain.
type RegularPlatform struct {
	id            string
	triple        arch.Triple
	Toolchain     toolchain.Config
	Configuration config.PlatformConfiguration
	Options
}

var _ Platform = (*RegularPlatform)(nil)

// NewRegular returns a platform building triple with tc.
func NewRegular(id string, triple arch.Triple, tc toolchain.Config, cfg config.PlatformConfiguration, opts Options) *RegularPlatform {
	return &RegularPlatform{id: id, triple: triple, Toolchain: tc, Configuration: cfg, Options: opts}
}

// FromConfiguration builds the platform declared as platforms.<id>.
func FromConfiguration(id string, cfg config.PlatformConfiguration, opts Options) (*RegularPlatform, error) {
	if cfg.Triple == "" {
		return nil, fmt.Errorf("platform %s: triple is required", id)
	}
	var (
		tc  toolchain.Config
		err error
	)
	switch {
	case cfg.DebMultiarch != "":
		tc = toolchain.Multiarch(cfg.DebMultiarch)
	case cfg.Toolchain != "":
		tc, err = toolchain.Discover(cfg.Toolchain)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", id, err)
		}
	default:
		return nil, fmt.Errorf("platform %s: either toolchain or deb_multiarch is required", id)
	}
	return NewRegular(id, arch.Triple(cfg.Triple), tc, cfg, opts), nil
}

func (p *RegularPlatform) ID() string          { return p.id }
func (p *RegularPlatform) Triple() arch.Triple { return p.triple }
func (p *RegularPlatform) Kind() Kind          { return KindRegular }

func (p *RegularPlatform) IsCompatibleWith(target Target) bool {
	return target.IsCompatibleWith(p)
}

func (p *RegularPlatform) String() string {
	return fmt.Sprintf("%s (%s, toolchain %s)", p.id, p.triple, p.Toolchain.Root)
}

// LinkerCommand renders the linker shim command: the toolchain compiler
// pointed at the sysroot, optionally verbose, plus forced libraries.
func LinkerCommand(cc, sysroot string, verbose bool, forced []string) string {
	parts := []string{toolchain.Quote(cc)}
	if verbose {
		parts = append(parts, "-Wl,--verbose", "-v")
	}
	parts = append(parts, "--sysroot", toolchain.Quote(sysroot))
	for _, lib := range forced {
		parts = append(parts, "-l"+lib)
	}
	return strings.Join(parts, " ")
}

func (p *RegularPlatform) configuredOverlays() []overlay.Overlay {
	ids := make([]string, 0, len(p.Configuration.Overlays))
	for id := range p.Configuration.Overlays {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]overlay.Overlay, 0, len(ids))
	for _, id := range ids {
		out = append(out, overlay.Overlay{ID: id, Path: p.Configuration.Overlays[id].Path, Scope: overlay.Application})
	}
	return out
}

func (p *RegularPlatform) Build(ctx context.Context, proj *project.Project, args build.Args) (build.Build, error) {
	logger := p.logger().With("platform", p.id, "triple", p.triple.String())
	env := freshEnv(p.Configuration.Env)
	tc := p.Toolchain

	overlays, err := overlay.Discover(proj.Root, p.Home, p.id, p.configuredOverlays())
	if err != nil {
		return build.Build{}, err
	}
	overlayer := &overlay.Overlayer{
		Triple:  p.triple,
		Sysroot: tc.Sysroot,
		WorkDir: overlay.WorkDirFor(proj.Root, p.triple, p.id),
		Logger:  logger,
	}
	if err := overlayer.Apply(env, overlays); err != nil {
		return build.Build{}, err
	}
	logger.Debug("overlays applied", "count", len(overlays))

	shims := toolchain.NewShims(proj.Root, p.triple, p.id)
	if err := shims.SetupCC(env, toolchain.Quote(tc.CCExecutable())); err != nil {
		return build.Build{}, err
	}
	if ar := tc.BinutilsExecutable("ar"); fileExists(ar) {
		if err := shims.SetupAr(env, toolchain.Quote(ar)); err != nil {
			return build.Build{}, err
		}
	}
	if err := shims.SetupOptionalTools(env, tc); err != nil {
		return build.Build{}, err
	}
	linker := LinkerCommand(tc.CCExecutable(), tc.Sysroot, args.Verbose, args.ForcedOverlays)
	if err := shims.SetupLinker(env, linker); err != nil {
		return build.Build{}, err
	}
	if err := shims.SetupPkgConfig(env, tc); err != nil {
		return build.Build{}, err
	}
	shims.SetupSysroot(env, tc.Sysroot)
	if err := shims.ShimExecutables(env, tc); err != nil {
		return build.Build{}, err
	}
	logger.Debug("toolchain shimmed", "shim_dir", shims.Dir())

	return p.Compiler.Build(ctx, build.CompileRequest{
		ProjectRoot: proj.Root,
		Triple:      p.triple,
		Args:        args,
		Env:         env,
	})
}

func (p *RegularPlatform) Strip(ctx context.Context, b build.Build) error {
	return stripRunnables(ctx, p.Runner, p.logger().With("platform", p.id), b, p.Toolchain.BinutilsExecutable("strip"))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
