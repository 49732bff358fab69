package overlay

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/buildenv"
	"github.com/cochaviz/dinghy/internal/errdefs"
)

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	mkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLibName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"libfoo.so":     "foo",
		"libfoo.so.1.2": "foo",
		"bar.so":        "bar",
		"libssl.so.3":   "ssl",
	}
	for input, want := range cases {
		got, err := LibName(input)
		if err != nil {
			t.Fatalf("LibName(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("LibName(%q) = %q, want %q", input, got, want)
		}
	}

	if _, err := LibName("lib.so"); err == nil {
		t.Fatalf("LibName(lib.so) error = nil, want error")
	}
}

func TestPathBetween(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX paths")
	}

	cases := []struct {
		from, to, want string
	}{
		{"/opt/tc/sysroot", "/home/me/.dinghy/overlay/rpi/sdl", "/../../../home/me/.dinghy/overlay/rpi/sdl"},
		{"/", "/srv/overlay", "/srv/overlay"},
	}
	for _, tc := range cases {
		if got := PathBetween(tc.from, tc.to); got != tc.want {
			t.Fatalf("PathBetween(%q, %q) = %q, want %q", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDedupFirstWins(t *testing.T) {
	t.Parallel()

	in := []Overlay{
		{ID: "sdl", Path: "/configured/sdl"},
		{ID: "ssl", Path: "/project/ssl"},
		{ID: "sdl", Path: "/home/sdl", Scope: System},
	}
	got := Dedup(in)
	if len(got) != 2 {
		t.Fatalf("Dedup() returned %d overlays, want 2", len(got))
	}
	if got[0].Path != "/configured/sdl" {
		t.Fatalf("Dedup() kept %q, want the configured overlay", got[0].Path)
	}
}

func TestCandidatePathsExcludeRootAndAppendHome(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX paths")
	}

	got := CandidatePaths("/work/app", "/home/me", "rpi")
	want := []string{
		"/work/app/.dinghy/overlay/rpi",
		"/work/.dinghy/overlay/rpi",
		"/home/me/.dinghy/overlay/rpi",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("CandidatePaths() = %v, want %v", got, want)
	}

	got = CandidatePaths("/home/me/app", "/home/me", "rpi")
	if len(got) != 3 || got[1] != "/home/me/.dinghy/overlay/rpi" {
		t.Fatalf("home candidate should not be duplicated: %v", got)
	}
}

func TestDiscoverOrderAndScopes(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "work", "app")
	home := filepath.Join(base, "home")
	mkdirAll(t, filepath.Join(project, ".dinghy", "overlay", "rpi", "sdl"))
	mkdirAll(t, filepath.Join(base, "work", ".dinghy", "overlay", "rpi", "ssl"))
	mkdirAll(t, filepath.Join(home, ".dinghy", "overlay", "rpi", "ssl"))
	mkdirAll(t, filepath.Join(home, ".dinghy", "overlay", "rpi", "zlib"))

	configured := []Overlay{{ID: "sdl", Path: "/configured/sdl"}}
	got, err := Discover(project, home, "rpi", configured)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	var ids []string
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	if strings.Join(ids, ",") != "sdl,ssl,zlib" {
		t.Fatalf("Discover() ids = %v", ids)
	}
	if got[0].Path != "/configured/sdl" {
		t.Fatalf("configured overlay should win, got %q", got[0].Path)
	}
	if got[1].Scope != Application || !strings.Contains(got[1].Path, "work") {
		t.Fatalf("ancestor overlay should win over home: %+v", got[1])
	}
	if got[2].Scope != System {
		t.Fatalf("home overlay scope = %v, want system", got[2].Scope)
	}
}

func TestDiscoverUnreadableCandidate(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	// A file where a directory is expected cannot be listed.
	touch(t, filepath.Join(project, ".dinghy", "overlay", "rpi"))

	_, err := Discover(project, "", "rpi", nil)
	if !errors.Is(err, errdefs.ErrOverlayRead) {
		t.Fatalf("Discover() error = %v, want ErrOverlayRead", err)
	}
}

func TestApplySynthesizesPkgConfig(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	ovl := filepath.Join(base, "overlays", "foo")
	touch(t, filepath.Join(ovl, "libfoo.so"))
	touch(t, filepath.Join(ovl, "libfoo.so.1"))
	touch(t, filepath.Join(ovl, "libbar.so.2"))
	touch(t, filepath.Join(ovl, "README"))

	withPC := filepath.Join(base, "overlays", "ssl")
	touch(t, filepath.Join(withPC, "lib", "pkgconfig", "openssl.pc"))
	touch(t, filepath.Join(withPC, "share", "extra", "libcrypto.pc"))

	triple := arch.Triple("armv7-unknown-linux-gnueabihf")
	workDir := WorkDirFor(filepath.Join(base, "project"), triple, "rpi")
	touch(t, filepath.Join(workDir, "stale.pc"))

	env := buildenv.New([]string{"PKG_CONFIG_SSL_PREFIX=/user/choice"})
	overlayer := &Overlayer{Triple: triple, Sysroot: filepath.Join(base, "sysroot"), WorkDir: workDir}
	err := overlayer.Apply(env, []Overlay{
		{ID: "foo", Path: ovl},
		{ID: "ssl", Path: withPC},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(workDir, "stale.pc")); !os.IsNotExist(err) {
		t.Fatalf("stale work dir content survived: %v", err)
	}
	pc, err := os.ReadFile(filepath.Join(workDir, "foo.pc"))
	if err != nil {
		t.Fatalf("read generated pc: %v", err)
	}
	if want := RenderPkgConfig("foo", []string{"bar", "foo"}); string(pc) != want {
		t.Fatalf("foo.pc = %q, want %q", pc, want)
	}
	if !strings.Contains(string(pc), "Libs: -L${prefix} -lbar -lfoo\n") {
		t.Fatalf("foo.pc libs line unexpected: %q", pc)
	}
	if _, err := os.Stat(filepath.Join(workDir, "ssl.pc")); !os.IsNotExist(err) {
		t.Fatalf("ssl.pc should not be generated when the overlay ships .pc files")
	}

	libdir := filepath.SplitList(env.Lookup("PKG_CONFIG_LIBDIR_armv7_unknown_linux_gnueabihf"))
	want := []string{
		workDir,
		filepath.Join(withPC, "lib", "pkgconfig"),
		filepath.Join(withPC, "share", "extra"),
	}
	if strings.Join(libdir, ",") != strings.Join(want, ",") {
		t.Fatalf("LIBDIR = %v, want %v", libdir, want)
	}

	if got := env.Lookup("PKG_CONFIG_FOO_PREFIX"); got != PathBetween(overlayer.Sysroot, ovl) {
		t.Fatalf("PKG_CONFIG_FOO_PREFIX = %q", got)
	}
	if got := env.Lookup("PKG_CONFIG_SSL_PREFIX"); got != "/user/choice" {
		t.Fatalf("user-defined prefix overwritten: %q", got)
	}
}

func TestApplyRejectsUnnamedLibrary(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	ovl := filepath.Join(base, "weird")
	touch(t, filepath.Join(ovl, "lib.so"))

	overlayer := &Overlayer{Triple: "x86_64-unknown-linux-gnu", Sysroot: "/", WorkDir: filepath.Join(base, "work")}
	if err := overlayer.Apply(buildenv.New(nil), []Overlay{{ID: "weird", Path: ovl}}); err == nil {
		t.Fatalf("Apply() error = nil, want error for lib.so")
	}
}

func TestPrefixVariable(t *testing.T) {
	t.Parallel()

	if got := PrefixVariable("gtk-3.0"); got != "PKG_CONFIG_GTK_3_0_PREFIX" {
		t.Fatalf("PrefixVariable() = %q", got)
	}
}
