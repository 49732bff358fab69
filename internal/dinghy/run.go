package dinghy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/device"
	"github.com/cochaviz/dinghy/internal/platform"
)

// Request selects the target of an operation and how to build for it.
type Request struct {
	// Device filters devices by id or name; empty picks the default device.
	Device string
	// Platform forces a platform id; empty lets Match choose.
	Platform string
	Build    build.Args
	// Strip removes symbols before bundling.
	Strip bool
}

// RunRequest adds what to do with the built runnables.
type RunRequest struct {
	Request
	Args []string
	// Envs are KEY=VALUE entries exported to the runnable.
	Envs []string
	// Cleanup removes each bundle from the device after a successful run.
	Cleanup bool
	// Debug starts the runnable under a debugger instead.
	Debug bool
}

// Target is the outcome of matching a request.
type Target struct {
	Device   device.Device
	Platform platform.Platform
}

// Build matches req and builds with the chosen platform. A failing strip is
// logged and otherwise ignored.
func (d *Dinghy) Build(ctx context.Context, req Request) (Target, build.Build, error) {
	dev, p, err := d.Match(req.Device, req.Platform)
	if err != nil {
		return Target{}, build.Build{}, err
	}
	logger := d.logger.With("device", dev.ID(), "platform", p.ID())
	logger.Info("building", "mode", req.Build.Mode)

	b, err := p.Build(ctx, d.Project, req.Build)
	if err != nil {
		return Target{}, build.Build{}, fmt.Errorf("build for %s: %w", p.ID(), err)
	}
	if req.Strip {
		if err := p.Strip(ctx, b); err != nil {
			logger.Warn("strip failed, keeping symbols", "error", err)
		}
	}
	return Target{Device: dev, Platform: p}, b, nil
}

// Bundle builds and stages every runnable for the matched device without
// installing it.
func (d *Dinghy) Bundle(ctx context.Context, req Request) (Target, []*device.BuildBundle, error) {
	target, b, err := d.Build(ctx, req)
	if err != nil {
		return Target{}, nil, err
	}
	bundles := make([]*device.BuildBundle, 0, len(b.Runnables))
	for _, runnable := range b.Runnables {
		bundle, err := target.Device.BundleApp(ctx, d.Project, b, runnable)
		if err != nil {
			return Target{}, nil, fmt.Errorf("bundle %s: %w", runnable.ID, err)
		}
		bundles = append(bundles, bundle)
	}
	return target, bundles, nil
}

// ExportISO writes each bundle to an ISO image in dir, named after the
// runnable, and returns the image paths.
func ExportISO(bundles []*device.BuildBundle, dir string) ([]string, error) {
	images := make([]string, 0, len(bundles))
	for _, bundle := range bundles {
		image := filepath.Join(dir, filepath.Base(bundle.Exe)+".iso")
		if err := device.ExportISO(*bundle, image); err != nil {
			return nil, fmt.Errorf("export %s: %w", bundle.ID, err)
		}
		images = append(images, image)
	}
	return images, nil
}

// Run builds, bundles, installs and runs every runnable on the matched
// device. The first failing step stops the run; installed bundles are kept
// and recorded so a later clean can remove them.
func (d *Dinghy) Run(ctx context.Context, req RunRequest) error {
	target, b, err := d.Build(ctx, req.Request)
	if err != nil {
		return err
	}
	dev := target.Device
	logger := d.logger.With("device", dev.ID(), "platform", target.Platform.ID())
	if len(b.Runnables) == 0 {
		logger.Warn("build produced nothing to run")
		return nil
	}

	args := req.Args
	if req.Build.Mode == build.ModeBench {
		args = append([]string{"--bench"}, args...)
	}

	for _, runnable := range b.Runnables {
		runLogger := logger.With("runnable", runnable.ID)

		staged, err := dev.BundleApp(ctx, d.Project, b, runnable)
		if err != nil {
			return fmt.Errorf("bundle %s: %w", runnable.ID, err)
		}
		installed, err := dev.InstallApp(ctx, staged)
		if err != nil {
			return fmt.Errorf("install %s: %w", runnable.ID, err)
		}

		record := device.NewBundleRecord(dev.ID(), target.Platform.ID(), *installed, d.now())
		if err := d.records.Save(record); err != nil {
			runLogger.Warn("saving bundle record failed", "error", err)
		} else {
			runLogger.Debug("recorded bundle", "record", record.ID)
		}

		runLogger.Info("running", "exe", installed.Exe)
		if req.Debug {
			err = dev.DebugApp(ctx, installed, args, req.Envs)
		} else {
			err = dev.RunApp(ctx, installed, args, req.Envs)
		}
		if err != nil {
			return fmt.Errorf("run %s: %w", runnable.ID, err)
		}

		if req.Cleanup {
			if err := dev.CleanApp(ctx, installed); err != nil {
				return fmt.Errorf("clean %s: %w", runnable.ID, err)
			}
			if err := d.records.Delete(record.ID); err != nil {
				runLogger.Warn("deleting bundle record failed", "error", err)
			}
		}
	}
	return nil
}

// Clean removes the recorded bundles of the device matching deviceFilter,
// or of every discovered device when the filter is empty. Records of
// devices that are not currently reachable are kept. It returns the number
// of bundles removed.
func (d *Dinghy) Clean(ctx context.Context, deviceFilter string) (int, error) {
	var devices []device.Device
	if deviceFilter != "" {
		dev, ok := d.DeviceByFilter(deviceFilter)
		if !ok {
			return 0, fmt.Errorf("no device matches %q", deviceFilter)
		}
		devices = []device.Device{dev}
	} else {
		devices = d.devices
	}

	removed := 0
	for _, dev := range devices {
		records, err := d.records.ForDevice(dev.ID())
		if err != nil {
			return removed, fmt.Errorf("read records of %s: %w", dev.ID(), err)
		}
		for _, record := range records {
			if err := d.cleanRecord(ctx, dev, record); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// CleanRecords removes the bundles recorded under ids. The device of every
// record must be reachable.
func (d *Dinghy) CleanRecords(ctx context.Context, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		record, err := d.records.Get(id)
		if err != nil {
			return removed, fmt.Errorf("read record %s: %w", id, err)
		}
		if record == nil {
			return removed, fmt.Errorf("no bundle record %q", id)
		}
		dev, ok := d.deviceByID(record.DeviceID)
		if !ok {
			return removed, fmt.Errorf("device %s of record %s is not reachable", record.DeviceID, id)
		}
		if err := d.cleanRecord(ctx, dev, *record); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (d *Dinghy) cleanRecord(ctx context.Context, dev device.Device, record device.BundleRecord) error {
	bundle := record.Bundle
	if err := dev.CleanApp(ctx, &bundle); err != nil {
		return fmt.Errorf("clean %s on %s: %w", bundle.ID, dev.ID(), err)
	}
	if err := d.records.Delete(record.ID); err != nil {
		return err
	}
	d.logger.Info("removed bundle", "device", dev.ID(), "record", record.ID, "dir", bundle.Dir)
	return nil
}
