// Package overlay discovers directories of prebuilt native libraries for a
// platform and makes them visible to pkg-config, synthesizing .pc files for
// overlays that ship none.
package overlay

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/buildenv"
	"github.com/cochaviz/dinghy/internal/errdefs"
	"github.com/cochaviz/dinghy/internal/logging"
	"github.com/cochaviz/dinghy/internal/toolchain"
)

// Scope tells where an overlay was declared.
type Scope int

const (
	// Application overlays come from the project configuration or directory tree.
	Application Scope = iota
	// System overlays come from the user's home directory.
	System
)

func (s Scope) String() string {
	if s == System {
		return "system"
	}
	return "application"
}

// Overlay is a directory of target libraries identified by ID.
type Overlay struct {
	ID    string
	Path  string
	Scope Scope
}

// CandidatePaths returns <dir>/.dinghy/overlay/<platformID> for projectRoot
// and each of its ancestors, nearest first and excluding the filesystem root,
// followed by the same path under home when it is not already listed.
func CandidatePaths(projectRoot, home, platformID string) []string {
	var out []string
	seen := make(map[string]bool)
	dir := filepath.Clean(projectRoot)
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		candidate := overlayDir(dir, platformID)
		out = append(out, candidate)
		seen[candidate] = true
		dir = parent
	}
	if home != "" {
		candidate := overlayDir(filepath.Clean(home), platformID)
		if !seen[candidate] {
			out = append(out, candidate)
		}
	}
	return out
}

func overlayDir(dir, platformID string) string {
	return filepath.Join(dir, ".dinghy", "overlay", platformID)
}

// Discover lists the overlays of a platform: configured ones first, then one
// per subdirectory of every existing candidate path. Missing candidates are
// skipped; unreadable ones fail with errdefs.ErrOverlayRead.
func Discover(projectRoot, home, platformID string, configured []Overlay) ([]Overlay, error) {
	overlays := append([]Overlay(nil), configured...)

	homeCandidate := ""
	if home != "" {
		homeCandidate = overlayDir(filepath.Clean(home), platformID)
	}

	for _, candidate := range CandidatePaths(projectRoot, home, platformID) {
		entries, err := os.ReadDir(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read overlay directory %s: %v: %w", candidate, err, errdefs.ErrOverlayRead)
		}
		scope := Application
		if candidate == homeCandidate {
			scope = System
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			overlays = append(overlays, Overlay{
				ID:    entry.Name(),
				Path:  filepath.Join(candidate, entry.Name()),
				Scope: scope,
			})
		}
	}
	return Dedup(overlays), nil
}

// Dedup keeps the first overlay of every ID.
func Dedup(overlays []Overlay) []Overlay {
	seen := make(map[string]bool, len(overlays))
	out := make([]Overlay, 0, len(overlays))
	for _, o := range overlays {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		out = append(out, o)
	}
	return out
}

// LibName derives the linker name of a shared library file:
// "libfoo.so.1" gives "foo".
func LibName(file string) (string, error) {
	name := strings.TrimPrefix(filepath.Base(file), "lib")
	if i := strings.Index(name, ".so"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", fmt.Errorf("cannot derive library name from %q", file)
	}
	return name, nil
}

// PathBetween returns a path that, appended to from, points at to. It is used
// as a pkg-config prefix that survives PKG_CONFIG_SYSROOT_DIR being prepended.
func PathBetween(from, to string) string {
	var parts []string
	for range components(from) {
		parts = append(parts, "..")
	}
	parts = append(parts, components(to)...)
	return "/" + strings.Join(parts, "/")
}

func components(path string) []string {
	path = filepath.ToSlash(filepath.Clean(path))
	if vol := filepath.VolumeName(path); vol != "" {
		path = strings.TrimPrefix(path, filepath.ToSlash(vol))
	}
	var out []string
	for _, c := range strings.Split(path, "/") {
		if c != "" && c != "." {
			out = append(out, c)
		}
	}
	return out
}

// RenderPkgConfig renders a minimal .pc file linking every lib in libs.
func RenderPkgConfig(id string, libs []string) string {
	var b strings.Builder
	b.WriteString("prefix:/\n")
	b.WriteString("exec_prefix:${prefix}\n")
	fmt.Fprintf(&b, "Name: %s\n", id)
	fmt.Fprintf(&b, "Description: %s\n", id)
	b.WriteString("Version: unspecified\n")
	b.WriteString("Libs: -L${prefix}")
	for _, lib := range libs {
		b.WriteString(" -l")
		b.WriteString(lib)
	}
	b.WriteByte('\n')
	b.WriteString("Cflags: -I${prefix}\n")
	return b.String()
}

// PrefixVariable is the pkg-config variable overriding the prefix of the
// package named id.
func PrefixVariable(id string) string {
	var b strings.Builder
	b.WriteString("PKG_CONFIG_")
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteString("_PREFIX")
	return b.String()
}

// Overlayer applies overlays to a build environment.
type Overlayer struct {
	Triple  arch.Triple
	Sysroot string
	// WorkDir receives synthesized .pc files. It is wiped on every Apply.
	WorkDir string
	Logger  *slog.Logger
}

// WorkDirFor returns the overlay work directory of a platform build.
func WorkDirFor(projectRoot string, triple arch.Triple, platformID string) string {
	return filepath.Join(projectRoot, "target", string(triple), platformID, "overlay")
}

func (o *Overlayer) logger() *slog.Logger {
	return logging.Ensure(o.Logger)
}

// Apply registers overlays with pkg-config in env.
func (o *Overlayer) Apply(env *buildenv.Env, overlays []Overlay) error {
	if err := os.RemoveAll(o.WorkDir); err != nil {
		o.logger().Warn("could not clear overlay work directory", "path", o.WorkDir, "error", err)
	}
	if err := os.MkdirAll(o.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create overlay work directory %s: %w", o.WorkDir, err)
	}

	libdirKey := toolchain.PkgConfigLibDirVariable(o.Triple)
	env.AppendPath(libdirKey, o.WorkDir)

	for _, overlay := range overlays {
		logger := o.logger().With("overlay", overlay.ID, "scope", overlay.Scope.String())
		dirs, err := pkgConfigDirsIn(overlay.Path)
		if err != nil {
			return fmt.Errorf("scan overlay %s: %v: %w", overlay.Path, err, errdefs.ErrOverlayRead)
		}

		if len(dirs) == 0 {
			libs, err := listLibs(overlay.Path)
			if err != nil {
				return err
			}
			pcPath := filepath.Join(o.WorkDir, overlay.ID+".pc")
			if err := os.WriteFile(pcPath, []byte(RenderPkgConfig(overlay.ID, libs)), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", pcPath, err)
			}
			logger.Debug("generated pkg-config file", "path", pcPath, "libs", libs)
		}
		for _, dir := range dirs {
			env.AppendPath(libdirKey, dir)
			logger.Debug("registered pkg-config directory", "path", dir)
		}

		env.SetIfUndefined(PrefixVariable(overlay.ID), PathBetween(o.Sysroot, overlay.Path))
	}
	return nil
}

// pkgConfigDirsIn returns every directory under root named pkgconfig or
// holding a .pc file, in walk order.
func pkgConfigDirsIn(root string) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "pkgconfig" {
				add(path)
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".pc") {
			add(filepath.Dir(path))
		}
		return nil
	})
	return dirs, err
}

// listLibs returns the sorted, distinct linker names of the shared libraries
// directly inside dir.
func listLibs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list overlay %s: %v: %w", dir, err, errdefs.ErrOverlayRead)
	}
	seen := make(map[string]bool)
	var libs []string
	for _, entry := range entries {
		if entry.IsDir() || !isSharedLib(entry.Name()) {
			continue
		}
		name, err := LibName(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("overlay %s: %w", dir, err)
		}
		if !seen[name] {
			seen[name] = true
			libs = append(libs, name)
		}
	}
	sort.Strings(libs)
	return libs, nil
}

func isSharedLib(name string) bool {
	return strings.HasSuffix(name, ".so") || strings.Contains(name, ".so.")
}
