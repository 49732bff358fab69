package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/dinghy"
	"github.com/cochaviz/dinghy/internal/logging"
)

const defaultLogLevel = "info"

// globalOptions are the flags shared by every command.
type globalOptions struct {
	platform string
	device   string
	// config replaces configuration discovery with a single file.
	config string
}

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	var (
		logLevel = defaultLogLevel
		global   globalOptions
	)

	root := &cobra.Command{
		Use:           "dinghy",
		Short:         "Build, ship and run Rust binaries on phones, boards and simulators",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&global.platform, "platform", "", "Platform to build with (defaults to the best match for the device)")
	root.PersistentFlags().StringVarP(&global.device, "device", "d", "", "Device id or name fragment to target")
	root.PersistentFlags().StringVar(&global.config, "config", "", "Read configuration from this file only")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		if levelVar != nil {
			levelVar.Set(level)
		}
		return nil
	}

	root.AddCommand(
		newDevicesCommand(logger, &global),
		newPlatformsCommand(logger, &global),
		newBuildCommand(logger, &global),
		newRunCommand(logger, &global, build.ModeBuild, "run", "Build, install and run the binaries on a device"),
		newRunCommand(logger, &global, build.ModeTest, "test", "Build and run the test binaries on a device"),
		newRunCommand(logger, &global, build.ModeBench, "bench", "Build and run the benchmarks on a device"),
		newBundleCommand(logger, &global),
		newCleanCommand(logger, &global),
	)
	return root
}

// buildFlags binds the flags that shape a build.
type buildFlags struct {
	release  bool
	verbose  bool
	strip    bool
	packages []string
	overlays []string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.release, "release", false, "Build with the release profile")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Verbose compiler and linker output")
	cmd.Flags().BoolVar(&f.strip, "strip", false, "Strip symbols from binaries before bundling")
	cmd.Flags().StringArrayVarP(&f.packages, "package", "p", nil, "Package to build; repeat to add more")
	cmd.Flags().StringArrayVar(&f.overlays, "overlay", nil, "Overlay library to link unconditionally; repeat to add more")
}

func (f *buildFlags) request(global *globalOptions, mode build.Mode, extra []string) dinghy.Request {
	return dinghy.Request{
		Device:   global.device,
		Platform: global.platform,
		Strip:    f.strip,
		Build: build.Args{
			Mode:           mode,
			Release:        f.release,
			Verbose:        f.verbose,
			ForcedOverlays: f.overlays,
			Packages:       f.packages,
			Extra:          extra,
		},
	}
}

func newBuildCommand(logger *slog.Logger, global *globalOptions) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build [-- cargo-args...]",
		Short: "Build for the platform matching the selected device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "build")

			d, err := openSession(cmd.Context(), cmdLogger, global)
			if err != nil {
				return err
			}
			target, b, err := d.Build(cmd.Context(), flags.request(global, build.ModeBuild, args))
			if err != nil {
				return err
			}

			for _, runnable := range b.Runnables {
				fmt.Println(runnable.Exe)
			}
			cmdLogger.Info("build completed", "platform", target.Platform.ID(), "runnables", len(b.Runnables))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRunCommand(logger *slog.Logger, global *globalOptions, mode build.Mode, use, short string) *cobra.Command {
	var (
		flags   buildFlags
		envs    []string
		cleanup bool
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   use + " [-- args...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", use)

			for _, kv := range envs {
				if key, _, ok := strings.Cut(kv, "="); !ok || key == "" {
					return fmt.Errorf("invalid --env %q, expected KEY=VALUE", kv)
				}
			}

			d, err := openSession(cmd.Context(), cmdLogger, global)
			if err != nil {
				return err
			}

			err = d.Run(cmd.Context(), dinghy.RunRequest{
				Request: flags.request(global, mode, nil),
				Args:    args,
				Envs:    envs,
				Cleanup: cleanup,
				Debug:   debug,
			})
			if err != nil {
				return err
			}
			cmdLogger.Info(use + " completed")
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVarP(&envs, "env", "e", nil, "KEY=VALUE exported to the binary on the device; repeat to add more")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove the bundle from the device after a successful run")
	cmd.Flags().BoolVar(&debug, "debug", false, "Start the binary under a debugger where the device supports it")
	return cmd
}

func newBundleCommand(logger *slog.Logger, global *globalOptions) *cobra.Command {
	var (
		flags  buildFlags
		isoDir string
	)

	cmd := &cobra.Command{
		Use:   "bundle [-- cargo-args...]",
		Short: "Build and stage bundles without installing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "bundle")

			d, err := openSession(cmd.Context(), cmdLogger, global)
			if err != nil {
				return err
			}
			_, bundles, err := d.Bundle(cmd.Context(), flags.request(global, build.ModeBuild, args))
			if err != nil {
				return err
			}
			for _, bundle := range bundles {
				fmt.Println(bundle.Dir)
			}

			if isoDir == "" {
				return nil
			}
			images, err := dinghy.ExportISO(bundles, isoDir)
			if err != nil {
				return err
			}
			for _, image := range images {
				cmdLogger.Info("wrote iso image", "path", image)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&isoDir, "iso", "", "Also write each bundle to an ISO image in this directory")
	return cmd
}

func newCleanCommand(logger *slog.Logger, global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean [record-id...]",
		Short: "Remove bundles previously installed on devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "clean")

			d, err := openSession(cmd.Context(), cmdLogger, global)
			if err != nil {
				return err
			}
			var removed int
			if len(args) > 0 {
				removed, err = d.CleanRecords(cmd.Context(), args)
			} else {
				removed, err = d.Clean(cmd.Context(), global.device)
			}
			if err != nil {
				return err
			}
			cmdLogger.Info("clean completed", "removed", removed)
			return nil
		},
	}
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}
