package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/logging"
)

// ManifestName marks the root of a project.
const ManifestName = "Cargo.toml"

// FindRoot walks up from startDir to the outermost directory holding a
// manifest, so workspace members resolve to the workspace root.
func FindRoot(startDir string) (root string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			root, ok = dir, true
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return root, ok, nil
}

// Project is a source tree being built and deployed.
type Project struct {
	Root   string
	Config *config.Configuration
	Logger *slog.Logger
}

// New returns the project rooted at root.
func New(root string, cfg *config.Configuration, logger *slog.Logger) *Project {
	if cfg == nil {
		cfg = &config.Configuration{}
	}
	return &Project{Root: root, Config: cfg, Logger: logger}
}

func (p *Project) logger() *slog.Logger {
	return logging.Ensure(p.Logger)
}

// TargetDir is where build outputs, shims and bundle records live.
func (p *Project) TargetDir() string {
	return filepath.Join(p.Root, "target")
}

// CopyTestData creates <bundleRoot>/test_data and copies every configured
// test data entry into it under its target name. Missing sources are skipped
// with a warning.
func (p *Project) CopyTestData(bundleRoot string) error {
	if err := os.MkdirAll(filepath.Join(bundleRoot, "test_data"), 0o755); err != nil {
		return fmt.Errorf("create test data directory: %w", err)
	}
	for _, td := range p.Config.TestData {
		source := td.SourcePath()
		dest := filepath.Join(bundleRoot, "test_data", td.Target)
		logger := p.logger().With("test_data", td.ID)

		info, err := os.Stat(source)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("test data source not found, skipping", "source", source)
				continue
			}
			return fmt.Errorf("stat test data %s: %w", source, err)
		}

		if !info.IsDir() {
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("create test data directory: %w", err)
			}
			if err := CopyFile(source, dest, info.Mode().Perm()); err != nil {
				return fmt.Errorf("copy test data %s: %w", source, err)
			}
			continue
		}

		stats, err := Copy(source, dest, CopyOptions{IncludeGitIgnored: td.CopyGitIgnored})
		if err != nil {
			return fmt.Errorf("copy test data %s: %w", source, err)
		}
		logger.Debug("copied test data", "copied", stats.Copied, "skipped", stats.Skipped)
	}
	return nil
}
