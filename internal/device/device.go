package device

import (
	"context"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/platform"
	"github.com/cochaviz/dinghy/internal/project"
)

// Kind is the closed set of device variants.
type Kind int

const (
	KindHost Kind = iota
	KindAndroid
	KindSSH
	KindIos
)

func (k Kind) String() string {
	switch k {
	case KindAndroid:
		return "android"
	case KindSSH:
		return "ssh"
	case KindIos:
		return "ios"
	default:
		return "host"
	}
}

// Device is an execution target reachable over some transport.
//
// The lifecycle of an app is BundleApp, InstallApp, RunApp and optionally
// CleanApp. A failed step aborts the following ones and nothing is rolled
// back.
type Device interface {
	ID() string
	Name() string
	Kind() Kind
	// Triples are the targets the device can execute, fixed at discovery.
	Triples() []arch.Triple
	IsCompatibleWith(p platform.Platform) bool

	// BundleApp stages runnable and its support files on the host.
	BundleApp(ctx context.Context, proj *project.Project, b build.Build, runnable build.Runnable) (*BuildBundle, error)
	// InstallApp transfers a staged bundle and returns where it lives on
	// the device.
	InstallApp(ctx context.Context, bundle *BuildBundle) (*BuildBundle, error)
	// RunApp executes an installed bundle. envs are KEY=VALUE entries.
	RunApp(ctx context.Context, installed *BuildBundle, args []string, envs []string) error
	// CleanApp removes an installed bundle.
	CleanApp(ctx context.Context, installed *BuildBundle) error
	// DebugApp starts an installed bundle under a debugger.
	DebugApp(ctx context.Context, installed *BuildBundle, args []string, envs []string) error
}

// Manager discovers devices of one kind.
type Manager interface {
	Name() string
	// Probe returns an error wrapping errdefs.ErrProbeUnavailable when the
	// manager's tooling is absent.
	Probe(ctx context.Context) error
	Devices(ctx context.Context) ([]Device, error)
}

// TriplePreferrer orders a device's triples for platform selection.
type TriplePreferrer interface {
	PreferredTriples() []arch.Triple
}

func containsTriple(triples []arch.Triple, t arch.Triple) bool {
	for _, candidate := range triples {
		if candidate == t {
			return true
		}
	}
	return false
}
