package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/errdefs"
)

// Config describes an installed cross toolchain.
type Config struct {
	// BinDir holds the compiler and binutils executables.
	BinDir string
	// Root is the toolchain installation directory.
	Root string
	// Triple is the toolchain's own spelling of its target, which may differ
	// from the build collaborator's.
	Triple arch.Triple
	Sysroot string
	// CC is the compiler family name, "gcc" or "clang".
	CC string
	// BinutilsPrefix prefixes ar, strip and friends.
	BinutilsPrefix string
	// CCPrefix prefixes the compiler executable.
	CCPrefix string
}

// Discover inspects a toolchain installation directory. The compiler prefix
// is taken from the first <prefix>-gcc executable in <dir>/bin and the sysroot
// is <dir>/sysroot or <dir>/*/sysroot.
func Discover(dir string) (Config, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve toolchain %s: %w", dir, err)
	}
	binDir := filepath.Join(root, "bin")
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return Config{}, fmt.Errorf("read toolchain bin %s: %w", binDir, err)
	}

	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	prefix := ""
	for _, name := range names {
		if p, ok := strings.CutSuffix(name, "-gcc"); ok {
			prefix = p
			break
		}
		if p, ok := strings.CutSuffix(name, "-gcc.exe"); ok {
			prefix = p
			break
		}
	}
	if prefix == "" {
		return Config{}, fmt.Errorf("no *-gcc compiler in %s: %w", binDir, errdefs.ErrToolchainMalformed)
	}

	sysroot, err := findSysroot(root)
	if err != nil {
		return Config{}, err
	}

	return Config{
		BinDir:         binDir,
		Root:           root,
		Triple:         arch.Triple(prefix),
		Sysroot:        sysroot,
		CC:             "gcc",
		BinutilsPrefix: prefix,
		CCPrefix:       prefix,
	}, nil
}

func findSysroot(root string) (string, error) {
	direct := filepath.Join(root, "sysroot")
	if isDir(direct) {
		return direct, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read toolchain %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		nested := filepath.Join(root, entry.Name(), "sysroot")
		if isDir(nested) {
			return nested, nil
		}
	}
	return "", fmt.Errorf("no sysroot found in toolchain %s: %w", root, errdefs.ErrToolchainMalformed)
}

// Multiarch returns the static configuration of a Debian multiarch cross
// toolchain installed under /usr, e.g. tuple "arm-linux-gnueabihf".
func Multiarch(tuple string) Config {
	return Config{
		BinDir:         "/usr/bin",
		Root:           "/",
		Triple:         arch.Triple(tuple),
		Sysroot:        "/",
		CC:             "gcc",
		BinutilsPrefix: tuple,
		CCPrefix:       tuple,
	}
}

// AndroidNDK returns the configuration of the unified LLVM toolchain shipped
// with an Android NDK for triple at the given API level.
func AndroidNDK(ndkRoot, hostTag string, triple arch.Triple, apiLevel int) Config {
	root := filepath.Join(ndkRoot, "toolchains", "llvm", "prebuilt", hostTag)
	ccTriple := string(triple)
	if triple.Architecture() == arch.ARMV7L {
		ccTriple = "armv7a-linux-androideabi"
	}
	return Config{
		BinDir:         filepath.Join(root, "bin"),
		Root:           root,
		Triple:         triple,
		Sysroot:        filepath.Join(root, "sysroot"),
		CC:             "clang",
		BinutilsPrefix: "llvm",
		CCPrefix:       ccTriple + strconv.Itoa(apiLevel),
	}
}

// CCExecutable returns the full path of the compiler.
func (c Config) CCExecutable() string {
	return filepath.Join(c.BinDir, c.CCPrefix+"-"+c.CC+executableSuffix)
}

// CXXExecutable returns the full path of the C++ compiler.
func (c Config) CXXExecutable() string {
	cxx := "g++"
	if c.CC == "clang" {
		cxx = "clang++"
	}
	return filepath.Join(c.BinDir, c.CCPrefix+"-"+cxx+executableSuffix)
}

// BinutilsExecutable returns the full path of a binutils tool such as "ar".
func (c Config) BinutilsExecutable(tool string) string {
	return filepath.Join(c.BinDir, c.BinutilsPrefix+"-"+tool+executableSuffix)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
