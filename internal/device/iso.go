package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
)

// ExportISO writes a staged bundle to an ISO 9660 image at imagePath. The
// image mirrors the bundle root: the bundle directory and the shared lib
// directory, so it can be attached to a machine without network access.
func ExportISO(bundle BuildBundle, imagePath string) error {
	writer, err := iso9660.NewWriter()
	if err != nil {
		return fmt.Errorf("create iso writer: %w", err)
	}
	defer writer.Cleanup()

	if err := writer.AddLocalDirectory(bundle.Dir, filepath.Base(bundle.Dir)); err != nil {
		return fmt.Errorf("stage bundle %s: %w", bundle.Dir, err)
	}
	if bundle.LibDir != "" {
		if _, err := os.Stat(bundle.LibDir); err == nil {
			if err := writer.AddLocalDirectory(bundle.LibDir, "lib"); err != nil {
				return fmt.Errorf("stage libraries %s: %w", bundle.LibDir, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return fmt.Errorf("ensure image directory: %w", err)
	}
	out, err := os.OpenFile(imagePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}

	if err := writer.WriteTo(out, VolumeLabel("dinghy", filepath.Base(bundle.Exe))); err != nil {
		_ = out.Close()
		_ = os.Remove(imagePath)
		return fmt.Errorf("write iso: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(imagePath)
		return fmt.Errorf("finalize iso: %w", err)
	}
	return nil
}

// VolumeLabel joins parts into an ISO volume label: upper-case letters,
// digits and underscores, at most 32 characters.
func VolumeLabel(parts ...string) string {
	const maxLen = 32

	var b strings.Builder
	for _, r := range strings.Join(parts, "_") {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "DINGHY"
	}
	return b.String()
}
