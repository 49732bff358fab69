package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/command"
)

var binaryTypes = []string{"application/x-elf", "application/x-mach-binary"}

// isStrippable reports whether path holds an ELF or Mach-O object.
func isStrippable(path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for m := mtype; m != nil; m = m.Parent() {
		for _, t := range binaryTypes {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}

// stripRunnables runs tool (plus leading args) on every strippable runnable
// and joins the failures.
func stripRunnables(ctx context.Context, runner command.Runner, logger *slog.Logger, b build.Build, tool ...string) error {
	var errs []error
	for _, r := range b.Runnables {
		if !isStrippable(r.Exe) {
			logger.Debug("skipping strip of non-binary", "exe", r.Exe)
			continue
		}
		args := append(append([]string(nil), tool[1:]...), r.Exe)
		if err := runner.Run(ctx, command.New(tool[0], args...)); err != nil {
			logger.Warn("strip failed", "exe", r.Exe, "error", err)
			errs = append(errs, fmt.Errorf("strip %s: %w", r.Exe, err))
			continue
		}
		logger.Debug("stripped", "exe", r.Exe)
	}
	return errors.Join(errs...)
}
