package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/errdefs"
	"github.com/cochaviz/dinghy/internal/logging"
	"github.com/cochaviz/dinghy/internal/platform"
	"github.com/cochaviz/dinghy/internal/project"
	"golang.org/x/term"
)

// DefaultSSHPath is the remote parent of installed bundles when the device
// configuration names none.
const DefaultSSHPath = "/tmp"

// SSHDevice is a remote machine reached with ssh and rsync.
type SSHDevice struct {
	id     string
	conf   config.SSHDeviceConfiguration
	Runner command.Runner
	Logger *slog.Logger
	// IsTTY reports whether stdout is a terminal; ssh then allocates a tty.
	IsTTY func() bool
}

var _ Device = (*SSHDevice)(nil)

// NewSSHDevice returns the device declared as id.
func NewSSHDevice(id string, conf config.SSHDeviceConfiguration, runner command.Runner, logger *slog.Logger) *SSHDevice {
	return &SSHDevice{
		id:     id,
		conf:   conf,
		Runner: runner,
		Logger: logger,
		IsTTY:  stdoutIsTerminal,
	}
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func (d *SSHDevice) logger() *slog.Logger {
	return logging.Ensure(d.Logger).With("device", d.id)
}

func (d *SSHDevice) ID() string   { return d.id }
func (d *SSHDevice) Name() string { return d.id }
func (d *SSHDevice) Kind() Kind   { return KindSSH }

func (d *SSHDevice) Triples() []arch.Triple {
	out := make([]arch.Triple, 0, len(d.conf.Triples))
	for _, t := range d.conf.Triples {
		out = append(out, arch.Triple(t))
	}
	return out
}

// BoundPlatform is the platform id the device was configured with.
func (d *SSHDevice) BoundPlatform() string { return d.conf.Platform }

func (d *SSHDevice) IsCompatibleWith(p platform.Platform) bool {
	return Compatible(d, p)
}

// Configuration returns the device's connection settings.
func (d *SSHDevice) Configuration() config.SSHDeviceConfiguration { return d.conf }

func (d *SSHDevice) destination() string {
	if d.conf.Username == "" {
		return d.conf.Hostname
	}
	return d.conf.Username + "@" + d.conf.Hostname
}

// sshArgs returns the connection arguments; interactive adds -t so the
// remote program sees a terminal.
func (d *SSHDevice) sshArgs(interactive bool) []string {
	var args []string
	if d.conf.Port != 0 {
		args = append(args, "-p", strconv.Itoa(d.conf.Port))
	}
	if interactive && d.IsTTY != nil && d.IsTTY() {
		args = append(args, "-t", "-o", "LogLevel=QUIET")
	}
	return append(args, d.destination())
}

func (d *SSHDevice) sshCommand(interactive bool, remote string) command.Command {
	return command.New("ssh", append(d.sshArgs(interactive), remote)...)
}

func (d *SSHDevice) rsync(src, dst string) command.Command {
	args := []string{"-a", "-v"}
	if d.conf.Port != 0 {
		args = append(args, "-e", "ssh -p "+strconv.Itoa(d.conf.Port))
	}
	args = append(args, src+"/", d.destination()+":"+dst+"/")
	return command.New("rsync", args...)
}

// RemoteRoot is the directory bundles are installed under.
func (d *SSHDevice) RemoteRoot() string {
	base := d.conf.Path
	if base == "" {
		base = DefaultSSHPath
	}
	return path.Join(base, "dinghy")
}

func (d *SSHDevice) BundleApp(_ context.Context, proj *project.Project, b build.Build, runnable build.Runnable) (*BuildBundle, error) {
	return MakeBundle(proj, b, runnable)
}

func (d *SSHDevice) InstallApp(ctx context.Context, bundle *BuildBundle) (*BuildBundle, error) {
	remote, err := bundle.ReplacePrefixWith(d.RemoteRoot())
	if err != nil {
		return nil, err
	}
	logger := d.logger()
	logger.Info("installing", "remote_dir", remote.Dir)

	// an existing directory is fine, rsync reports real failures
	mkdir := d.sshCommand(false, "mkdir -p "+shellQuote(remote.Dir)+" "+shellQuote(remote.LibDir))
	if err := d.Runner.Run(ctx, mkdir); err != nil {
		logger.Debug("mkdir failed", "error", err)
	}

	var out io.Writer = io.Discard
	if logging.DebugEnabled(logger) {
		w := logging.NewWriter(logger, slog.LevelDebug, "rsync")
		defer w.Close()
		out = w
	}
	for _, pair := range [][2]string{{bundle.Dir, remote.Dir}, {bundle.LibDir, remote.LibDir}} {
		var stderr bytes.Buffer
		cmd := d.rsync(pair[0], pair[1])
		cmd.Stdout = out
		cmd.Stderr = io.MultiWriter(out, &stderr)
		if err := d.Runner.Run(ctx, cmd); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, fmt.Errorf("rsync %s to %s: %w: %s", pair[0], d.id, err, msg)
			}
			return nil, fmt.Errorf("rsync %s to %s: %w", pair[0], d.id, err)
		}
	}
	return &remote, nil
}

func (d *SSHDevice) RunApp(ctx context.Context, installed *BuildBundle, args []string, envs []string) error {
	cmd := d.sshCommand(true, RemoteRunCommand(*installed, envs, args))
	cmd.Stdin = os.Stdin
	if err := d.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("run on %s: %w", d.id, err)
	}
	return nil
}

func (d *SSHDevice) CleanApp(ctx context.Context, installed *BuildBundle) error {
	if err := d.Runner.Run(ctx, d.sshCommand(false, "rm -rf "+shellQuote(installed.Dir))); err != nil {
		return fmt.Errorf("clean on %s: %w", d.id, err)
	}
	return nil
}

func (d *SSHDevice) DebugApp(context.Context, *BuildBundle, []string, []string) error {
	return errdefs.Unsupported("ssh device", "debug")
}

// SSHManager yields the devices declared in configuration.
type SSHManager struct {
	Configured map[string]config.SSHDeviceConfiguration
	Runner     command.Runner
	Logger     *slog.Logger
}

var _ Manager = (*SSHManager)(nil)

func (m *SSHManager) Name() string { return "ssh" }

// Probe checks that an ssh client is installed.
func (m *SSHManager) Probe(ctx context.Context) error {
	if len(m.Configured) == 0 {
		return fmt.Errorf("no ssh devices configured: %w", errdefs.ErrProbeUnavailable)
	}
	if !command.Succeeds(ctx, m.Runner, command.New("ssh", "-V")) {
		return fmt.Errorf("ssh not found: %w", errdefs.ErrProbeUnavailable)
	}
	return nil
}

func (m *SSHManager) Devices(context.Context) ([]Device, error) {
	ids := make([]string, 0, len(m.Configured))
	for id := range m.Configured {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	devices := make([]Device, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, NewSSHDevice(id, m.Configured[id], m.Runner, m.Logger))
	}
	return devices, nil
}
