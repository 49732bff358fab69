package device

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/project"
)

// BuildBundle locates a staged or installed app. Every path lives under Root.
type BuildBundle struct {
	// ID is the runnable the bundle was made for.
	ID string `json:"id"`
	// Root holds every bundle of one target directory plus the shared lib dir.
	Root string `json:"root"`
	Dir  string `json:"dir"`
	Exe  string `json:"exe"`
	// LibDir holds the dynamic libraries shared by all bundles under Root.
	LibDir string `json:"lib_dir"`
}

// ReplacePrefixWith returns the bundle relocated from Root to root. The
// result uses forward slashes since it names a location on a device.
// Relocating twice to the same root yields the same bundle.
func (b BuildBundle) ReplacePrefixWith(root string) (BuildBundle, error) {
	relocate := func(p string) (string, error) {
		if p == "" {
			return "", nil
		}
		rel, err := relativeTo(b.Root, p)
		if err != nil {
			return "", err
		}
		return path.Join(root, rel), nil
	}

	out := BuildBundle{ID: b.ID, Root: path.Clean(root)}
	var err error
	if out.Dir, err = relocate(b.Dir); err != nil {
		return BuildBundle{}, err
	}
	if out.Exe, err = relocate(b.Exe); err != nil {
		return BuildBundle{}, err
	}
	if out.LibDir, err = relocate(b.LibDir); err != nil {
		return BuildBundle{}, err
	}
	return out, nil
}

func relativeTo(root, p string) (string, error) {
	r := filepath.ToSlash(root)
	s := filepath.ToSlash(p)
	if s == r {
		return ".", nil
	}
	prefix := strings.TrimSuffix(r, "/") + "/"
	if !strings.HasPrefix(s, prefix) {
		return "", fmt.Errorf("path %s is outside bundle root %s", p, root)
	}
	return strings.TrimPrefix(s, prefix), nil
}

// MakeBundle stages runnable under <exe-parent>/dinghy/<exe-name>: the
// executable, the build's dynamic libraries, the runnable's source tree in
// src/ and the project's test data in test_data/. A previous bundle of the
// same runnable is removed first.
func MakeBundle(proj *project.Project, b build.Build, runnable build.Runnable) (*BuildBundle, error) {
	exeName := filepath.Base(runnable.Exe)
	root := filepath.Join(filepath.Dir(runnable.Exe), "dinghy")
	bundle := &BuildBundle{
		ID:     runnable.ID,
		Root:   root,
		Dir:    filepath.Join(root, exeName),
		Exe:    filepath.Join(root, exeName, exeName),
		LibDir: filepath.Join(root, "lib"),
	}

	if err := os.RemoveAll(bundle.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("clear bundle %s: %w", bundle.Dir, err)
	}
	for _, dir := range []string{bundle.Dir, bundle.LibDir, filepath.Join(bundle.Dir, "test_data")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := project.CopyFile(runnable.Exe, bundle.Exe, 0o755); err != nil {
		return nil, fmt.Errorf("copy executable %s: %w", runnable.Exe, err)
	}
	for _, lib := range b.DynamicLibraries {
		name := filepath.Base(lib)
		for _, dst := range []string{filepath.Join(bundle.Dir, name), filepath.Join(bundle.LibDir, name)} {
			if err := project.CopyFile(lib, dst, 0o755); err != nil {
				return nil, fmt.Errorf("copy library %s: %w", lib, err)
			}
		}
	}

	if runnable.Source != "" {
		if _, err := project.Copy(runnable.Source, filepath.Join(bundle.Dir, "src"), project.CopyOptions{}); err != nil {
			return nil, fmt.Errorf("copy sources: %w", err)
		}
	}
	if proj != nil {
		if err := proj.CopyTestData(bundle.Dir); err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

// RemoteRunCommand renders the shell line that runs an installed bundle:
// enter its directory, mark the run with DINGHY=1, apply envs, expose the
// shared lib dir and exec the binary with args.
func RemoteRunCommand(installed BuildBundle, envs []string, args []string) string {
	parts := []string{"cd", shellQuote(installed.Dir), ";", "DINGHY=1"}
	for _, kv := range envs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		parts = append(parts, key+"="+shellQuote(value))
	}
	if installed.LibDir != "" {
		parts = append(parts, `LD_LIBRARY_PATH="`+installed.LibDir+`:$LD_LIBRARY_PATH"`)
	}
	parts = append(parts, shellQuote(installed.Exe))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
