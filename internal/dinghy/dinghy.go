// Package dinghy ties platforms and devices together: it discovers both,
// matches a device with a platform able to build for it and drives the
// build, bundle, install and run steps.
package dinghy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/device"
	"github.com/cochaviz/dinghy/internal/device/repositories/local"
	"github.com/cochaviz/dinghy/internal/errdefs"
	"github.com/cochaviz/dinghy/internal/logging"
	"github.com/cochaviz/dinghy/internal/platform"
	"github.com/cochaviz/dinghy/internal/project"
)

var hostOS = runtime.GOOS

// Options configures discovery.
type Options struct {
	Runner command.Runner
	Logger *slog.Logger
	// Platforms replaces platform discovery when non-nil.
	Platforms []platform.Platform
	// Managers replaces the default device managers when non-nil.
	Managers []device.Manager
	// Records stores installed bundles; defaults to JSON files under the
	// project's target directory.
	Records device.BundleRepository
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Dinghy holds the discovered platforms and devices of one invocation.
type Dinghy struct {
	Project *project.Project

	platforms []platform.Platform
	managers  []device.Manager
	devices   []device.Device
	records   device.BundleRepository
	logger    *slog.Logger
	now       func() time.Time
}

// RecordsDir is where bundle records of proj are kept.
func RecordsDir(proj *project.Project) string {
	return filepath.Join(proj.TargetDir(), "dinghy", "bundles")
}

// DefaultManagers returns the device managers for cfg: host, Android, SSH,
// iOS simulators and, when configured, libvirt.
func DefaultManagers(cfg *config.Configuration, runner command.Runner, logger *slog.Logger, home string) []device.Manager {
	managers := []device.Manager{
		&device.HostManager{Runner: runner, Logger: logger},
		&device.AndroidManager{Runner: runner, Logger: logger, Preferred: cfg.Android.PreferredTriples, Home: home},
		&device.SSHManager{Configured: cfg.SSHDevices, Runner: runner, Logger: logger},
		&device.IosSimulatorManager{Runner: runner, Logger: logger},
	}
	if cfg.Libvirt != nil {
		managers = append(managers, &device.LibvirtManager{Config: cfg.Libvirt, Runner: runner, Logger: logger})
	}
	return managers
}

// New discovers platforms and devices for proj. Managers whose tooling is
// missing are left out; discovery then waits the configured settle delay
// before asking the remaining managers for devices.
func New(ctx context.Context, proj *project.Project, platformOpts platform.Options, opts Options) (*Dinghy, error) {
	logger := logging.Ensure(opts.Logger).With("component", "dinghy")
	cfg := proj.Config

	d := &Dinghy{
		Project: proj,
		records: opts.Records,
		logger:  logger,
		now:     opts.Now,
	}
	if d.records == nil {
		d.records = &local.LocalBundleRepository{BaseDir: RecordsDir(proj)}
	}
	if d.now == nil {
		d.now = time.Now
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	d.platforms = opts.Platforms
	if d.platforms == nil {
		platforms, err := DiscoverPlatforms(cfg, platformOpts, getenv)
		if err != nil {
			return nil, err
		}
		d.platforms = platforms
	}

	candidates := opts.Managers
	if candidates == nil {
		candidates = DefaultManagers(cfg, opts.Runner, opts.Logger, platformOpts.Home)
	}
	managers, err := probeManagers(ctx, candidates, logger)
	if err != nil {
		return nil, err
	}
	d.managers = managers

	if cfg.SettleDelay > 0 {
		select {
		case <-time.After(cfg.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for _, m := range d.managers {
		devices, err := m.Devices(ctx)
		if err != nil {
			logger.Warn("listing devices failed", "manager", m.Name(), "error", err)
			continue
		}
		d.devices = append(d.devices, devices...)
	}
	logger.Debug("discovery finished", "platforms", len(d.platforms), "devices", len(d.devices))
	return d, nil
}

// probeManagers probes every candidate concurrently and keeps, in order,
// the ones whose tooling is present. Any other probe error is fatal.
func probeManagers(ctx context.Context, candidates []device.Manager, logger *slog.Logger) ([]device.Manager, error) {
	available := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range candidates {
		g.Go(func() error {
			err := m.Probe(gctx)
			switch {
			case err == nil:
				available[i] = true
				return nil
			case errors.Is(err, errdefs.ErrProbeUnavailable):
				logger.Debug("device manager unavailable", "manager", m.Name(), "reason", err)
				return nil
			default:
				return fmt.Errorf("probe %s: %w", m.Name(), err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []device.Manager
	for i, m := range candidates {
		if available[i] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *Dinghy) Platforms() []platform.Platform { return d.platforms }
func (d *Dinghy) Devices() []device.Device       { return d.devices }
func (d *Dinghy) Managers() []device.Manager     { return d.managers }

// PlatformByID returns the platform named id.
func (d *Dinghy) PlatformByID(id string) (platform.Platform, bool) {
	for _, p := range d.platforms {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

func (d *Dinghy) deviceByID(id string) (device.Device, bool) {
	for _, dev := range d.devices {
		if dev.ID() == id {
			return dev, true
		}
	}
	return nil, false
}

// DeviceByFilter returns the device whose id equals filter, or else the
// first device whose id or name contains it, ignoring case.
func (d *Dinghy) DeviceByFilter(filter string) (device.Device, bool) {
	if dev, ok := d.deviceByID(filter); ok {
		return dev, true
	}
	needle := strings.ToLower(filter)
	for _, dev := range d.devices {
		if strings.Contains(strings.ToLower(dev.ID()), needle) || strings.Contains(strings.ToLower(dev.Name()), needle) {
			return dev, true
		}
	}
	return nil, false
}

// defaultDevice prefers the first non-host device.
func (d *Dinghy) defaultDevice() (device.Device, bool) {
	for _, dev := range d.devices {
		if dev.Kind() != device.KindHost {
			return dev, true
		}
	}
	if len(d.devices) > 0 {
		return d.devices[0], true
	}
	return nil, false
}

// Match picks the device named by deviceFilter (or the default device) and
// the platform that builds for it. An explicit platformID must be
// compatible with the device. Otherwise a device with triple preferences
// gets the first platform matching them, in order, and any other device the
// first compatible platform.
func (d *Dinghy) Match(deviceFilter, platformID string) (device.Device, platform.Platform, error) {
	var (
		dev device.Device
		ok  bool
	)
	if deviceFilter != "" {
		dev, ok = d.DeviceByFilter(deviceFilter)
		if !ok {
			return nil, nil, fmt.Errorf("no device matches %q", deviceFilter)
		}
	} else if dev, ok = d.defaultDevice(); !ok {
		return nil, nil, errors.New("no device found")
	}

	if platformID != "" {
		p, ok := d.PlatformByID(platformID)
		if !ok {
			return nil, nil, fmt.Errorf("unknown platform %q", platformID)
		}
		if !dev.IsCompatibleWith(p) {
			return nil, nil, errdefs.Mismatch(dev.ID(), p.ID())
		}
		return dev, p, nil
	}

	if preferrer, ok := dev.(device.TriplePreferrer); ok {
		for _, triple := range preferrer.PreferredTriples() {
			for _, p := range d.platforms {
				if p.Triple() == triple && dev.IsCompatibleWith(p) {
					return dev, p, nil
				}
			}
		}
	}
	for _, p := range d.platforms {
		if dev.IsCompatibleWith(p) {
			return dev, p, nil
		}
	}
	return nil, nil, errdefs.Mismatch(dev.ID(), "any platform")
}

// CompatiblePlatforms lists the platforms able to build for dev.
func (d *Dinghy) CompatiblePlatforms(dev device.Device) []platform.Platform {
	var out []platform.Platform
	for _, p := range d.platforms {
		if dev.IsCompatibleWith(p) {
			out = append(out, p)
		}
	}
	return out
}
