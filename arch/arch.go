package arch

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Architecture is the canonical CPU family of a target, using the names
// libvirt reports for guest domains.
type Architecture string

const (
	X86_64  Architecture = "x86_64"
	I686    Architecture = "i686"
	AArch64 Architecture = "aarch64"
	ARMV7L  Architecture = "armv7l"
	ARM     Architecture = "arm"
	PPC64LE Architecture = "ppc64le"
	RISCV64 Architecture = "riscv64"
	MIPS    Architecture = "mips"
	MIPSEL  Architecture = "mipsel"
)

// Supported returns the full list of known architectures.
func Supported() []Architecture {
	return []Architecture{
		X86_64,
		I686,
		AArch64,
		ARMV7L,
		ARM,
		PPC64LE,
		RISCV64,
		MIPS,
		MIPSEL,
	}
}

// IsValid reports whether a is a known architecture.
func (a Architecture) IsValid() bool {
	switch a {
	case X86_64, I686, AArch64, ARMV7L, ARM, PPC64LE, RISCV64, MIPS, MIPSEL:
		return true
	default:
		return false
	}
}

func (a Architecture) String() string {
	return string(a)
}

// Parse returns the canonical Architecture for value or an error if unknown.
func Parse(value string) (Architecture, error) {
	if a := Normalize(value); a != "" {
		return a, nil
	}
	return "", fmt.Errorf("unsupported architecture %q (supported: %s)", value, strings.Join(supportedStrings(), ", "))
}

// Normalize maps the many spellings used by Go, Debian, Android ABIs and
// target triples onto a canonical Architecture. Returns "" when unknown.
func Normalize(value string) Architecture {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case string(X86_64), "x86-64", "amd64":
		return X86_64
	case "x86", "i386", "i486", "i586", string(I686), "386":
		return I686
	case string(AArch64), "arm64", "arm64-v8a":
		return AArch64
	case string(ARMV7L), "armv7", "armhf", "armv7s", "thumbv7neon", "armeabi-v7a":
		return ARMV7L
	case string(ARM), "armel", "armv6", "armeabi":
		return ARM
	case string(PPC64LE), "ppc64el", "powerpc64le":
		return PPC64LE
	case string(RISCV64), "riscv64gc":
		return RISCV64
	case string(MIPS):
		return MIPS
	case string(MIPSEL), "mipsle":
		return MIPSEL
	default:
		return ""
	}
}

// Host returns the architecture of the running process.
func Host() Architecture {
	return Normalize(runtime.GOARCH)
}

func supportedStrings() []string {
	all := Supported()
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return out
}
