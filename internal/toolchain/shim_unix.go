//go:build !windows

package toolchain

import "golang.org/x/sys/unix"

// GlobArgs forwards every argument of the shim to the wrapped command.
const GlobArgs = `"$@"`

const (
	shimExtension    = ""
	executableSuffix = ""
)

// POSIX is the shell syntax used for shims on this host.
var POSIX = ShellSyntax{Header: "#!/bin/sh", Comment: "#", ForwardArgs: GlobArgs}

var hostSyntax = POSIX

func isExecutable(path string) bool {
	return unix.Access(path, unix.X_OK) == nil
}
