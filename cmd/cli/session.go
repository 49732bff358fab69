package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cochaviz/dinghy/internal/build/adapters/cargo"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/device"
	"github.com/cochaviz/dinghy/internal/dinghy"
	"github.com/cochaviz/dinghy/internal/platform"
	"github.com/cochaviz/dinghy/internal/project"
)

// openSession loads the configuration of the project around the working
// directory, or the file named by --config, and discovers platforms and
// devices.
func openSession(ctx context.Context, logger *slog.Logger, global *globalOptions) (*dinghy.Dinghy, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	root, found, err := project.FindRoot(cwd)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Debug("no project manifest found, using working directory", "dir", cwd)
		root = cwd
	}

	loader := config.DefaultLoader()
	var cfg *config.Configuration
	if global.config != "" {
		cfg, err = config.LoadFile(global.config)
	} else {
		cfg, err = loader.Load(cwd)
	}
	if err != nil {
		return nil, err
	}
	for _, file := range cfg.Files {
		logger.Debug("loaded configuration", "file", file)
	}

	runner := command.NewExecRunner(logger.With("component", "command"))
	proj := project.New(root, cfg, logger.With("component", "project"))
	platformOpts := platform.Options{
		Compiler: cargo.New(runner, logger.With("component", "cargo")),
		Runner:   runner,
		Logger:   logger.With("component", "platform"),
		Home:     loader.Home,
	}

	return dinghy.New(ctx, proj, platformOpts, dinghy.Options{
		Runner: runner,
		Logger: logger,
	})
}

func newDevicesCommand(logger *slog.Logger, global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List reachable devices and the platforms that can build for them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "devices")

			d, err := openSession(cmd.Context(), cmdLogger, global)
			if err != nil {
				return err
			}

			devices := d.Devices()
			if global.device != "" {
				dev, ok := d.DeviceByFilter(global.device)
				if !ok {
					return fmt.Errorf("no device matches %q", global.device)
				}
				devices = []device.Device{dev}
			}
			if len(devices) == 0 {
				var managers []string
				for _, m := range d.Managers() {
					managers = append(managers, m.Name())
				}
				cmdLogger.Warn("no devices found", "managers", strings.Join(managers, ","))
				return nil
			}
			return printDevices(os.Stdout, d, devices)
		},
	}
}

func printDevices(w io.Writer, d *dinghy.Dinghy, devices []device.Device) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	id := color.New(color.Bold).SprintFunc()
	muted := color.New(color.Faint).SprintFunc()

	for _, dev := range devices {
		var platforms []string
		for _, p := range d.CompatiblePlatforms(dev) {
			platforms = append(platforms, p.ID())
		}
		compatible := strings.Join(platforms, ",")
		if compatible == "" {
			compatible = muted("none")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id(dev.ID()), dev.Kind(), dev.Name(), compatible)
	}
	return tw.Flush()
}

func newPlatformsCommand(logger *slog.Logger, global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List the platforms dinghy can build with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "platforms")

			d, err := openSession(cmd.Context(), cmdLogger, global)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			id := color.New(color.Bold).SprintFunc()
			for _, p := range d.Platforms() {
				if global.platform != "" && p.ID() != global.platform {
					continue
				}
				triple := p.Triple().String()
				if triple == "" {
					triple = "(host)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", id(p.ID()), p.Kind(), triple)
			}
			return tw.Flush()
		},
	}
}
