//go:build windows

package toolchain

import (
	"path/filepath"
	"strings"
)

// GlobArgs forwards every argument of the shim to the wrapped command.
const GlobArgs = `%*`

const (
	shimExtension    = ".bat"
	executableSuffix = ".exe"
)

// Batch is the shell syntax used for shims on this host.
var Batch = ShellSyntax{Header: "@echo off", Comment: "rem", ForwardArgs: GlobArgs}

var hostSyntax = Batch

func isExecutable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe", ".bat", ".cmd":
		return true
	default:
		return false
	}
}
