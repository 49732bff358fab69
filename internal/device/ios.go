package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/buildenv"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/errdefs"
	"github.com/cochaviz/dinghy/internal/logging"
	"github.com/cochaviz/dinghy/internal/platform"
	"github.com/cochaviz/dinghy/internal/project"
)

// hostOS and hostArch are variables so tests can pretend to run on macOS.
var (
	hostOS   = runtime.GOOS
	hostArch = runtime.GOARCH
)

// IosSimulator is a booted simulator driven with `xcrun simctl`.
type IosSimulator struct {
	udid    string
	name    string
	runtime string
	Runner  command.Runner
	Logger  *slog.Logger
}

var _ Device = (*IosSimulator)(nil)

func (d *IosSimulator) logger() *slog.Logger {
	return logging.Ensure(d.Logger).With("device", d.udid)
}

func (d *IosSimulator) ID() string   { return d.udid }
func (d *IosSimulator) Name() string { return d.name }
func (d *IosSimulator) Kind() Kind   { return KindIos }

// Runtime is the simulator runtime identifier, such as an iOS version.
func (d *IosSimulator) Runtime() string { return d.runtime }

// Triples is the simulator triple matching the host CPU.
func (d *IosSimulator) Triples() []arch.Triple {
	if hostArch == "arm64" {
		return []arch.Triple{"aarch64-apple-ios-sim"}
	}
	return []arch.Triple{"x86_64-apple-ios"}
}

func (d *IosSimulator) IsCompatibleWith(p platform.Platform) bool {
	return Compatible(d, p)
}

// BundleIdentifier derives the CFBundleIdentifier of an app from its
// executable name.
func BundleIdentifier(exe string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, exe)
	return "dinghy." + name
}

const infoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleExecutable</key>
	<string>%s</string>
	<key>CFBundleIdentifier</key>
	<string>%s</string>
	<key>CFBundleName</key>
	<string>%s</string>
	<key>CFBundleVersion</key>
	<string>1.0</string>
	<key>CFBundleShortVersionString</key>
	<string>1.0</string>
</dict>
</plist>
`

// BundleApp stages the bundle as an .app directory with an Info.plist, the
// layout simctl installs.
func (d *IosSimulator) BundleApp(_ context.Context, proj *project.Project, b build.Build, runnable build.Runnable) (*BuildBundle, error) {
	bundle, err := MakeBundle(proj, b, runnable)
	if err != nil {
		return nil, err
	}

	exeName := filepath.Base(bundle.Exe)
	appDir := bundle.Dir + ".app"
	if err := os.RemoveAll(appDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("clear app %s: %w", appDir, err)
	}
	if err := os.Rename(bundle.Dir, appDir); err != nil {
		return nil, fmt.Errorf("rename bundle to %s: %w", appDir, err)
	}
	bundle.Dir = appDir
	bundle.Exe = filepath.Join(appDir, exeName)

	plist := fmt.Sprintf(infoPlist, exeName, BundleIdentifier(exeName), exeName)
	if err := os.WriteFile(filepath.Join(appDir, "Info.plist"), []byte(plist), 0o644); err != nil {
		return nil, fmt.Errorf("write Info.plist: %w", err)
	}
	return bundle, nil
}

func (d *IosSimulator) InstallApp(ctx context.Context, bundle *BuildBundle) (*BuildBundle, error) {
	d.logger().Info("installing", "app", bundle.Dir)
	if err := d.Runner.Run(ctx, command.New("xcrun", "simctl", "install", d.udid, bundle.Dir)); err != nil {
		return nil, fmt.Errorf("install on %s: %w", d.udid, err)
	}
	return bundle, nil
}

func (d *IosSimulator) RunApp(ctx context.Context, installed *BuildBundle, args []string, envs []string) error {
	env := buildenv.FromOS()
	env.Set("SIMCTL_CHILD_DINGHY", "1")
	for k, v := range buildenv.New(envs).Map() {
		env.Set("SIMCTL_CHILD_"+k, v)
	}

	launch := []string{"simctl", "launch", "--console", "--terminate-running-process", d.udid, BundleIdentifier(filepath.Base(installed.Exe))}
	cmd := command.New("xcrun", append(launch, args...)...)
	cmd.Env = env.Environ()
	if err := d.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("run on %s: %w", d.udid, err)
	}
	return nil
}

func (d *IosSimulator) CleanApp(ctx context.Context, installed *BuildBundle) error {
	cmd := command.New("xcrun", "simctl", "uninstall", d.udid, BundleIdentifier(filepath.Base(installed.Exe)))
	if err := d.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("clean on %s: %w", d.udid, err)
	}
	return nil
}

func (d *IosSimulator) DebugApp(context.Context, *BuildBundle, []string, []string) error {
	return errdefs.Unsupported("ios simulator", "debug")
}

type simctlDevice struct {
	UDID        string `json:"udid"`
	Name        string `json:"name"`
	State       string `json:"state"`
	IsAvailable bool   `json:"isAvailable"`
}

type simctlList struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

// ParseSimctlDevices returns the booted simulators in `simctl list -j`
// output, sorted by runtime then name.
func ParseSimctlDevices(data []byte) ([]IosSimulator, error) {
	var list simctlList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode simctl output: %w", err)
	}

	runtimes := make([]string, 0, len(list.Devices))
	for rt := range list.Devices {
		runtimes = append(runtimes, rt)
	}
	sort.Strings(runtimes)

	var out []IosSimulator
	for _, rt := range runtimes {
		devices := list.Devices[rt]
		sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
		for _, dev := range devices {
			if dev.State != "Booted" {
				continue
			}
			out = append(out, IosSimulator{udid: dev.UDID, name: dev.Name, runtime: rt})
		}
	}
	return out, nil
}

// IosSimulatorManager lists booted simulators on macOS.
type IosSimulatorManager struct {
	Runner command.Runner
	Logger *slog.Logger
}

var _ Manager = (*IosSimulatorManager)(nil)

func (m *IosSimulatorManager) Name() string { return "ios-simulator" }

func (m *IosSimulatorManager) Probe(ctx context.Context) error {
	if hostOS != "darwin" {
		return fmt.Errorf("ios simulators need macOS: %w", errdefs.ErrProbeUnavailable)
	}
	if !command.Succeeds(ctx, m.Runner, command.New("xcrun", "simctl", "help")) {
		return fmt.Errorf("xcrun simctl not found: %w", errdefs.ErrProbeUnavailable)
	}
	return nil
}

func (m *IosSimulatorManager) Devices(ctx context.Context) ([]Device, error) {
	out, err := m.Runner.Output(ctx, command.New("xcrun", "simctl", "list", "-j", "devices", "booted"))
	if err != nil {
		return nil, fmt.Errorf("list simulators: %w", err)
	}
	sims, err := ParseSimctlDevices(out)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(sims))
	for i := range sims {
		sim := sims[i]
		sim.Runner = m.Runner
		sim.Logger = m.Logger
		devices = append(devices, &sim)
	}
	return devices, nil
}
