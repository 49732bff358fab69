package toolchain

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/buildenv"
)

// ShellSyntax describes how a shim script is written on a host OS.
type ShellSyntax struct {
	Header      string
	Comment     string
	ForwardArgs string
}

// RenderShim returns the body of a shim script named name that runs command
// with every shim argument appended.
func RenderShim(name, command string, syntax ShellSyntax) string {
	var b strings.Builder
	if syntax.Header != "" {
		b.WriteString(syntax.Header)
		b.WriteByte('\n')
	}
	if syntax.Comment != "" {
		fmt.Fprintf(&b, "%s %s shim generated by dinghy\n", syntax.Comment, name)
	}
	fmt.Fprintf(&b, "%s %s\n", command, syntax.ForwardArgs)
	return b.String()
}

// Quote wraps a path so that shims survive spaces in it.
func Quote(path string) string {
	return `"` + path + `"`
}

// Shims writes wrapper scripts for one (triple, platform) pair under
// <Root>/target/<Triple>/<ID>.
type Shims struct {
	Root   string
	Triple arch.Triple
	ID     string
	Syntax ShellSyntax
}

// NewShims returns the shim set of platform id building triple in the
// project rooted at root, using the host shell syntax.
func NewShims(root string, triple arch.Triple, id string) *Shims {
	return &Shims{Root: root, Triple: triple, ID: id, Syntax: hostSyntax}
}

// Dir is the directory holding the role shims.
func (s *Shims) Dir() string {
	return filepath.Join(s.Root, "target", string(s.Triple), s.ID)
}

// ExecutablesDir holds the renamed toolchain executables.
func (s *Shims) ExecutablesDir() string {
	return filepath.Join(s.Dir(), "bin")
}

// Write creates or replaces the shim name running command and returns its path.
func (s *Shims) Write(name, command string) (string, error) {
	return s.writeIn(s.Dir(), name, command)
}

func (s *Shims) writeIn(dir, name, command string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create shim directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name+shimExtension)
	body := RenderShim(name, command, s.Syntax)
	if err := os.WriteFile(path, []byte(body), 0o777); err != nil {
		return "", fmt.Errorf("write shim %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file and honours umask.
	if err := os.Chmod(path, 0o777); err != nil {
		return "", fmt.Errorf("chmod shim %s: %w", path, err)
	}
	return path, nil
}

// SetupCC shims the C compiler and points TARGET_CC and CC_<triple> at it.
func (s *Shims) SetupCC(env *buildenv.Env, command string) error {
	return s.SetupTool(env, "cc", "CC", command)
}

// SetupAr shims the archiver and points TARGET_AR and AR_<triple> at it.
func (s *Shims) SetupAr(env *buildenv.Env, command string) error {
	return s.SetupTool(env, "ar", "AR", command)
}

// SetupTool shims an auxiliary tool and exports it both as TARGET_<VAR> and
// as the triple-qualified <VAR>_<triple>.
func (s *Shims) SetupTool(env *buildenv.Env, name, variable, command string) error {
	path, err := s.Write(name, command)
	if err != nil {
		return err
	}
	env.Set("TARGET_"+variable, path)
	env.Set(variable+"_"+s.Triple.Underscored(), path)
	return nil
}

// SetupLinker shims the linker and exports CARGO_TARGET_<TRIPLE>_LINKER.
func (s *Shims) SetupLinker(env *buildenv.Env, command string) error {
	path, err := s.Write("linker", command)
	if err != nil {
		return err
	}
	env.Set(LinkerVariable(s.Triple), path)
	return nil
}

// LinkerVariable is the variable cargo reads for the linker of triple.
func LinkerVariable(triple arch.Triple) string {
	return "CARGO_TARGET_" + triple.Envify() + "_LINKER"
}

// PkgConfigLibDirVariable is the triple-qualified PKG_CONFIG_LIBDIR.
func PkgConfigLibDirVariable(triple arch.Triple) string {
	return "PKG_CONFIG_LIBDIR_" + triple.Underscored()
}

// PkgConfigSysrootVariable is the triple-qualified PKG_CONFIG_SYSROOT_DIR.
func PkgConfigSysrootVariable(triple arch.Triple) string {
	return "PKG_CONFIG_SYSROOT_DIR_" + triple.Underscored()
}

// SetupPkgConfig allows pkg-config to cross compile and restricts its search
// path to the pkgconfig directories of the toolchain.
func (s *Shims) SetupPkgConfig(env *buildenv.Env, tc Config) error {
	env.Set("PKG_CONFIG_ALLOW_CROSS", "1")
	dirs, err := pkgConfigDirs(tc)
	if err != nil {
		return err
	}
	key := PkgConfigLibDirVariable(s.Triple)
	for _, dir := range dirs {
		env.AppendPath(key, dir)
	}
	env.Set(PkgConfigSysrootVariable(s.Triple), tc.Sysroot)
	return nil
}

func pkgConfigDirs(tc Config) ([]string, error) {
	var dirs []string
	for _, candidate := range []string{
		filepath.Join(tc.Sysroot, "usr", "lib", "pkgconfig"),
		filepath.Join(tc.Sysroot, "usr", "lib", string(tc.Triple), "pkgconfig"),
		filepath.Join(tc.Sysroot, "usr", "share", "pkgconfig"),
		filepath.Join(tc.Sysroot, "usr", "local", "lib", "pkgconfig"),
	} {
		if isDir(candidate) {
			dirs = append(dirs, candidate)
		}
	}

	// A system-wide root is never walked.
	if tc.Root == "" || tc.Root == string(filepath.Separator) {
		return dirs, nil
	}
	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		seen[d] = true
	}
	err := filepath.WalkDir(tc.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "pkgconfig" && !seen[path] {
			seen[path] = true
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan toolchain %s for pkgconfig: %w", tc.Root, err)
	}
	return dirs, nil
}

// SetupSysroot exports TARGET_SYSROOT.
func (s *Shims) SetupSysroot(env *buildenv.Env, sysroot string) {
	env.Set("TARGET_SYSROOT", sysroot)
}

// ShimExecutables mirrors every executable of the toolchain bin directory,
// renamed from the toolchain triple to the build triple, and puts the mirror
// first on PATH.
func (s *Shims) ShimExecutables(env *buildenv.Env, tc Config) error {
	entries, err := os.ReadDir(tc.BinDir)
	if err != nil {
		return fmt.Errorf("read toolchain bin %s: %w", tc.BinDir, err)
	}
	dir := s.ExecutablesDir()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		source := filepath.Join(tc.BinDir, entry.Name())
		if !isExecutable(source) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), executableSuffix)
		if tc.Triple != "" && tc.Triple != s.Triple {
			name = strings.Replace(name, string(tc.Triple), string(s.Triple), 1)
		}
		if _, err := s.writeIn(dir, name, Quote(source)); err != nil {
			return err
		}
	}
	env.PrependPath("PATH", dir)
	return nil
}

// SetupOptionalTools shims the binutils the toolchain actually ships among
// as, c++, cpp and gfortran. Clang toolchains only get c++: their llvm-
// prefixed tools are not target assemblers or preprocessors.
func (s *Shims) SetupOptionalTools(env *buildenv.Env, tc Config) error {
	type tool struct {
		name, variable, path string
	}
	tools := []tool{{"cxx", "CXX", tc.CXXExecutable()}}
	if tc.CC != "clang" {
		tools = append(tools,
			tool{"as", "AS", tc.BinutilsExecutable("as")},
			tool{"cpp", "CPP", tc.BinutilsExecutable("cpp")},
			tool{"fc", "FC", tc.BinutilsExecutable("gfortran")},
		)
	}
	for _, tool := range tools {
		if !exists(tool.path) {
			continue
		}
		if err := s.SetupTool(env, tool.name, tool.variable, Quote(tool.path)); err != nil {
			return err
		}
	}
	return nil
}
