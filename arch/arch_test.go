package arch

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]Architecture{
		"amd64":       X86_64,
		" X86_64 ":    X86_64,
		"arm64":       AArch64,
		"arm64-v8a":   AArch64,
		"armv7":       ARMV7L,
		"armeabi-v7a": ARMV7L,
		"armeabi":     ARM,
		"i686":        I686,
		"riscv64gc":   RISCV64,
		"sparc":       "",
	}

	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	t.Parallel()

	if _, err := Parse("sparc"); err == nil {
		t.Fatalf("Parse() error = nil, want error")
	}
}

func TestTripleHelpers(t *testing.T) {
	t.Parallel()

	triple := Triple("aarch64-linux-android")
	if got := triple.Envify(); got != "AARCH64_LINUX_ANDROID" {
		t.Fatalf("Envify() = %q", got)
	}
	if got := triple.Underscored(); got != "aarch64_linux_android" {
		t.Fatalf("Underscored() = %q", got)
	}
	if got := triple.Architecture(); got != AArch64 {
		t.Fatalf("Architecture() = %q, want %q", got, AArch64)
	}
	if Triple("armv7-unknown-linux-gnueabihf").Architecture() != ARMV7L {
		t.Fatalf("armv7 triple should map to %q", ARMV7L)
	}
}

func TestTripleIsSimulator(t *testing.T) {
	t.Parallel()

	cases := map[Triple]bool{
		"x86_64-apple-ios":      true,
		"aarch64-apple-ios-sim": true,
		"aarch64-apple-ios":     false,
	}
	for triple, want := range cases {
		if got := triple.IsSimulator(); got != want {
			t.Fatalf("%s.IsSimulator() = %v, want %v", triple, got, want)
		}
	}
}

func TestLinuxTriple(t *testing.T) {
	t.Parallel()

	if got := AArch64.LinuxTriple(); got != "aarch64-unknown-linux-gnu" {
		t.Fatalf("AArch64.LinuxTriple() = %q", got)
	}
	if got := ARMV7L.LinuxTriple(); got != "armv7-unknown-linux-gnueabihf" {
		t.Fatalf("ARMV7L.LinuxTriple() = %q", got)
	}
	if got := Architecture("sparc").LinuxTriple(); got != "" {
		t.Fatalf("unknown LinuxTriple() = %q, want empty", got)
	}
	for _, a := range Supported() {
		if a.LinuxTriple().Architecture() != a {
			t.Fatalf("%s.LinuxTriple() does not round-trip: %s", a, a.LinuxTriple())
		}
	}
}
