package arch

import "strings"

// Triple identifies a compilation target as arch-vendor-os-abi. The value is
// opaque: only the helpers below interpret it.
type Triple string

func (t Triple) String() string {
	return string(t)
}

// Envify renders the triple the way cargo expects it inside variable names,
// e.g. CARGO_TARGET_AARCH64_LINUX_ANDROID_LINKER.
func (t Triple) Envify() string {
	return strings.ToUpper(t.Underscored())
}

// Underscored renders the triple with dashes replaced by underscores, the
// suffix form used by cc and pkg-config (CC_aarch64_linux_android).
func (t Triple) Underscored() string {
	return strings.ReplaceAll(string(t), "-", "_")
}

// Architecture returns the CPU family named by the first triple component.
func (t Triple) Architecture() Architecture {
	head, _, _ := strings.Cut(string(t), "-")
	return Normalize(head)
}

// IsSimulator reports whether the triple names an Apple simulator target.
func (t Triple) IsSimulator() bool {
	s := string(t)
	return strings.HasSuffix(s, "-sim") || strings.Contains(s, "86")
}

var linuxTriples = map[Architecture]Triple{
	X86_64:  "x86_64-unknown-linux-gnu",
	I686:    "i686-unknown-linux-gnu",
	AArch64: "aarch64-unknown-linux-gnu",
	ARMV7L:  "armv7-unknown-linux-gnueabihf",
	ARM:     "arm-unknown-linux-gnueabi",
	PPC64LE: "powerpc64le-unknown-linux-gnu",
	RISCV64: "riscv64gc-unknown-linux-gnu",
	MIPS:    "mips-unknown-linux-gnu",
	MIPSEL:  "mipsel-unknown-linux-gnu",
}

// LinuxTriple returns the GNU/Linux triple of a, or "" when a is unknown.
func (a Architecture) LinuxTriple() Triple {
	return linuxTriples[a]
}
