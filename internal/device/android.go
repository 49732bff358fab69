package device

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/errdefs"
	"github.com/cochaviz/dinghy/internal/logging"
	"github.com/cochaviz/dinghy/internal/platform"
	"github.com/cochaviz/dinghy/internal/project"
)

// AndroidRemoteRoot is where bundles are pushed on Android devices.
const AndroidRemoteRoot = "/data/local/tmp/dinghy"

var abiTriples = map[string]arch.Triple{
	"arm64-v8a":   "aarch64-linux-android",
	"armeabi-v7a": "armv7-linux-androideabi",
	"armeabi":     "arm-linux-androideabi",
	"x86":         "i686-linux-android",
	"x86_64":      "x86_64-linux-android",
}

// ABIsToTriples maps Android ABI names to target triples, keeping the
// device's order and dropping unknown ABIs.
func ABIsToTriples(abis []string) []arch.Triple {
	var out []arch.Triple
	for _, abi := range abis {
		if t, ok := abiTriples[strings.TrimSpace(abi)]; ok && !containsTriple(out, t) {
			out = append(out, t)
		}
	}
	return out
}

var adbDeviceLine = regexp.MustCompile(`^(\S+)\tdevice\r?$`)

// ParseADBDevices extracts the serials of ready devices from `adb devices`.
func ParseADBDevices(output string) []string {
	var serials []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	first := true
	for scanner.Scan() {
		if first {
			// "List of devices attached"
			first = false
			continue
		}
		if m := adbDeviceLine.FindStringSubmatch(scanner.Text()); m != nil {
			serials = append(serials, m[1])
		}
	}
	return serials
}

// AndroidDevice is a phone or emulator reachable with adb.
type AndroidDevice struct {
	serial    string
	model     string
	adb       string
	triples   []arch.Triple
	preferred []arch.Triple
	Runner    command.Runner
	Logger    *slog.Logger
}

var (
	_ Device          = (*AndroidDevice)(nil)
	_ TriplePreferrer = (*AndroidDevice)(nil)
)

func (d *AndroidDevice) logger() *slog.Logger {
	return logging.Ensure(d.Logger).With("device", d.serial)
}

func (d *AndroidDevice) ID() string             { return d.serial }
func (d *AndroidDevice) Name() string           { return d.model }
func (d *AndroidDevice) Kind() Kind             { return KindAndroid }
func (d *AndroidDevice) Triples() []arch.Triple { return d.triples }

func (d *AndroidDevice) IsCompatibleWith(p platform.Platform) bool {
	return Compatible(d, p)
}

// PreferredTriples orders the device triples: configured preferences the
// device supports come first, the remaining triples follow in ABI order.
func (d *AndroidDevice) PreferredTriples() []arch.Triple {
	var out []arch.Triple
	for _, t := range d.preferred {
		if containsTriple(d.triples, t) && !containsTriple(out, t) {
			out = append(out, t)
		}
	}
	for _, t := range d.triples {
		if !containsTriple(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (d *AndroidDevice) adbCommand(args ...string) command.Command {
	return command.New(d.adb, append([]string{"-s", d.serial}, args...)...)
}

func (d *AndroidDevice) BundleApp(_ context.Context, proj *project.Project, b build.Build, runnable build.Runnable) (*BuildBundle, error) {
	return MakeBundle(proj, b, runnable)
}

func (d *AndroidDevice) InstallApp(ctx context.Context, bundle *BuildBundle) (*BuildBundle, error) {
	remote, err := bundle.ReplacePrefixWith(AndroidRemoteRoot)
	if err != nil {
		return nil, err
	}
	logger := d.logger()
	logger.Info("installing", "remote_dir", remote.Dir)

	steps := []command.Command{
		d.adbCommand("shell", "rm", "-rf", remote.Dir, remote.LibDir),
		d.adbCommand("shell", "mkdir", "-p", AndroidRemoteRoot),
		d.adbCommand("push", bundle.Dir, remote.Dir),
		d.adbCommand("push", bundle.LibDir, remote.LibDir),
		d.adbCommand("shell", "chmod", "755", remote.Exe),
	}
	out := logging.NewWriter(logger, slog.LevelDebug, "adb")
	defer out.Close()
	for _, step := range steps {
		step.Stdout = out
		if err := d.Runner.Run(ctx, step); err != nil {
			return nil, fmt.Errorf("install on %s: %w", d.serial, err)
		}
	}
	return &remote, nil
}

func (d *AndroidDevice) RunApp(ctx context.Context, installed *BuildBundle, args []string, envs []string) error {
	cmd := d.adbCommand("shell", RemoteRunCommand(*installed, envs, args))
	cmd.Stdin = os.Stdin
	if err := d.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("run on %s: %w", d.serial, err)
	}
	return nil
}

func (d *AndroidDevice) CleanApp(ctx context.Context, installed *BuildBundle) error {
	if err := d.Runner.Run(ctx, d.adbCommand("shell", "rm", "-rf", installed.Dir)); err != nil {
		return fmt.Errorf("clean on %s: %w", d.serial, err)
	}
	return nil
}

func (d *AndroidDevice) DebugApp(context.Context, *BuildBundle, []string, []string) error {
	return errdefs.Unsupported("android device", "debug")
}

// AndroidManager discovers devices with adb.
type AndroidManager struct {
	Runner command.Runner
	Logger *slog.Logger
	// Preferred orders triples when a device supports several ABIs.
	Preferred []string
	// Home is used to find the adb of a default SDK install.
	Home string

	adb string
}

var _ Manager = (*AndroidManager)(nil)

func (m *AndroidManager) Name() string { return "android" }

func (m *AndroidManager) candidates() []string {
	out := []string{"adb"}
	for _, key := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		if sdk := os.Getenv(key); sdk != "" {
			out = append(out, filepath.Join(sdk, "platform-tools", "adb"))
		}
	}
	if m.Home != "" {
		out = append(out,
			filepath.Join(m.Home, "Library", "Android", "sdk", "platform-tools", "adb"),
			filepath.Join(m.Home, "Android", "Sdk", "platform-tools", "adb"),
		)
	}
	return out
}

// Probe looks for a working adb.
func (m *AndroidManager) Probe(ctx context.Context) error {
	for _, candidate := range m.candidates() {
		if command.Succeeds(ctx, m.Runner, command.New(candidate, "version")) {
			m.adb = candidate
			logging.Ensure(m.Logger).Debug("found adb", "path", candidate)
			return nil
		}
	}
	return fmt.Errorf("adb not found: %w", errdefs.ErrProbeUnavailable)
}

func (m *AndroidManager) Devices(ctx context.Context) ([]Device, error) {
	if m.adb == "" {
		if err := m.Probe(ctx); err != nil {
			return nil, err
		}
	}
	out, err := m.Runner.Output(ctx, command.New(m.adb, "devices"))
	if err != nil {
		return nil, fmt.Errorf("list adb devices: %w", err)
	}

	preferred := make([]arch.Triple, 0, len(m.Preferred))
	for _, p := range m.Preferred {
		preferred = append(preferred, arch.Triple(p))
	}

	var devices []Device
	for _, serial := range ParseADBDevices(string(out)) {
		d := &AndroidDevice{serial: serial, adb: m.adb, preferred: preferred, Runner: m.Runner, Logger: m.Logger}
		abis, err := d.getprop(ctx, "ro.product.cpu.abilist")
		if err != nil {
			return nil, err
		}
		if abis == "" {
			if abis, err = d.getprop(ctx, "ro.product.cpu.abi"); err != nil {
				return nil, err
			}
		}
		d.triples = ABIsToTriples(strings.Split(abis, ","))
		if d.model, err = d.getprop(ctx, "ro.product.model"); err != nil || d.model == "" {
			d.model = serial
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (d *AndroidDevice) getprop(ctx context.Context, name string) (string, error) {
	out, err := d.Runner.Output(ctx, d.adbCommand("shell", "getprop", name))
	if err != nil {
		return "", fmt.Errorf("getprop %s on %s: %w", name, d.serial, err)
	}
	return strings.TrimSpace(string(out)), nil
}
