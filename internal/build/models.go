package build

import (
	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/buildenv"
)

// Mode selects what the build collaborator produces.
type Mode string

// Supported build modes.
const (
	ModeBuild Mode = "build"
	ModeTest  Mode = "test"
	ModeBench Mode = "bench"
)

// Args are the user-facing build options.
type Args struct {
	Mode    Mode
	Release bool
	Verbose bool
	// ForcedOverlays are linked unconditionally with -l<name>.
	ForcedOverlays []string
	// Packages restricts the build to the named packages.
	Packages []string
	// Extra is forwarded verbatim to the build collaborator.
	Extra []string
}

// CompileRequest is what a platform hands to the build collaborator after
// steering the environment.
type CompileRequest struct {
	ProjectRoot string
	// Triple is empty for host builds.
	Triple arch.Triple
	Args   Args
	Env    *buildenv.Env
}

// Runnable is an executable produced by a build.
type Runnable struct {
	ID string
	// Exe is the absolute path of the executable.
	Exe string
	// Source is the package directory the executable was built from.
	Source string
}

// Build is the output of a platform build.
type Build struct {
	Runnables        []Runnable
	DynamicLibraries []string
	TargetDir        string
}
