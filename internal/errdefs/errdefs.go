package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProbeUnavailable marks a device manager whose transport tool is missing.
	ErrProbeUnavailable = errors.New("probe unavailable")
	// ErrToolchainMalformed marks a toolchain directory without a compiler or sysroot.
	ErrToolchainMalformed = errors.New("toolchain malformed")
	// ErrOverlayRead marks an overlay directory that exists but cannot be read.
	ErrOverlayRead = errors.New("overlay read failure")
	// ErrTransport marks a failed push, install, run or clean subprocess.
	ErrTransport = errors.New("transport failure")
	// ErrCompatibilityMismatch marks a device that cannot run a platform's output.
	ErrCompatibilityMismatch = errors.New("compatibility mismatch")
	// ErrUnsupported marks an operation a device or platform does not implement.
	ErrUnsupported = errors.New("unsupported operation")
)

// TransportError records a subprocess that exited unsuccessfully while
// talking to a device.
type TransportError struct {
	Command  []string
	ExitCode int
	Err      error
}

func (e *TransportError) Error() string {
	cmd := strings.Join(e.Command, " ")
	if e.Err != nil {
		return fmt.Sprintf("%s: %q exited with %d: %v", ErrTransport, cmd, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s: %q exited with %d", ErrTransport, cmd, e.ExitCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Mismatch builds an ErrCompatibilityMismatch naming both sides.
func Mismatch(device, platform string) error {
	return fmt.Errorf("device %s cannot run platform %s: %w", device, platform, ErrCompatibilityMismatch)
}

// Unsupported builds an ErrUnsupported naming the operation and its owner.
func Unsupported(owner, operation string) error {
	return fmt.Errorf("%s: %s: %w", owner, operation, ErrUnsupported)
}
