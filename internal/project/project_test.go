package project

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFindRootPrefersWorkspace(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "Cargo.toml"), "[workspace]\n")
	writeFile(t, filepath.Join(base, "crates", "app", "Cargo.toml"), "[package]\n")
	start := filepath.Join(base, "crates", "app", "src")
	require.NoError(t, os.MkdirAll(start, 0o755))

	root, ok, err := FindRoot(start)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, base, root)
}

func TestFindRootMissing(t *testing.T) {
	t.Parallel()

	_, ok, err := FindRoot(t.TempDir())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCopyHonoursIgnoreRules(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "src")
	writeFile(t, filepath.Join(src, ".gitignore"), "*.log\n/build/\n")
	writeFile(t, filepath.Join(src, ".dinghyignore"), "secrets.txt\n")
	writeFile(t, filepath.Join(src, "src", "main.rs"), "fn main() {}")
	writeFile(t, filepath.Join(src, "src", "nested", ".gitignore"), "generated.rs\n")
	writeFile(t, filepath.Join(src, "src", "nested", "generated.rs"), "// gen")
	writeFile(t, filepath.Join(src, "src", "generated.rs"), "// kept")
	writeFile(t, filepath.Join(src, "debug.log"), "noise")
	writeFile(t, filepath.Join(src, "build", "out.o"), "obj")
	writeFile(t, filepath.Join(src, "secrets.txt"), "hunter2")
	writeFile(t, filepath.Join(src, "target", "debug", "app"), "binary")
	writeFile(t, filepath.Join(src, "assets", "target", "x"), "nested target")

	stats, err := Copy(src, dst, CopyOptions{})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dst, "src", "main.rs"))
	assert.FileExists(t, filepath.Join(dst, "src", "generated.rs"))
	assert.NoFileExists(t, filepath.Join(dst, "src", "nested", "generated.rs"))
	assert.NoFileExists(t, filepath.Join(dst, "debug.log"))
	assert.NoDirExists(t, filepath.Join(dst, "build"))
	assert.NoFileExists(t, filepath.Join(dst, "secrets.txt"))
	assert.NoDirExists(t, filepath.Join(dst, "target"))
	assert.NoDirExists(t, filepath.Join(dst, "assets", "target"))
	// .gitignore, .dinghyignore, main.rs, src/generated.rs, src/nested/.gitignore
	assert.Equal(t, 5, stats.Copied)
	assert.Equal(t, 0, stats.Skipped)
}

func TestCopyIncludeGitIgnored(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, ".gitignore"), "*.bin\n")
	writeFile(t, filepath.Join(src, ".dinghyignore"), "huge.bin\n")
	writeFile(t, filepath.Join(src, "model.bin"), "weights")
	writeFile(t, filepath.Join(src, "huge.bin"), "weights")

	_, err := Copy(src, dst, CopyOptions{IncludeGitIgnored: true})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dst, "model.bin"))
	assert.NoFileExists(t, filepath.Join(dst, "huge.bin"))
}

func TestCopyIsIncremental(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "aaa")
	writeFile(t, filepath.Join(src, "dir", "b.txt"), "bbb")

	first, err := Copy(src, dst, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Copied: 2}, first)

	second, err := Copy(src, dst, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Skipped: 2}, second)

	writeFile(t, filepath.Join(src, "a.txt"), "changed")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(src, "a.txt"), future, future))

	third, err := Copy(src, dst, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Copied: 1, Skipped: 1}, third)

	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "changed", string(data))
}

func TestCopyKeepsDirectoryLinksAsLinks(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "aaa")
	writeFile(t, filepath.Join(src, "..", "outside.txt"), "outside")
	require.NoError(t, os.Symlink("..", filepath.Join(src, "up")))

	first, err := Copy(src, dst, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Copied: 2}, first)

	target, err := os.Readlink(filepath.Join(dst, "up"))
	require.NoError(t, err)
	assert.Equal(t, "..", target)
	info, err := os.Lstat(filepath.Join(dst, "up"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	second, err := Copy(src, dst, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Skipped: 2}, second)
}

func TestCopyTestData(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "fixtures", "input.json"), "{}")
	writeFile(t, filepath.Join(base, "single.txt"), "one")

	var logs bytes.Buffer
	cfg := &config.Configuration{TestData: []config.TestDataConfiguration{
		{ID: "fixtures", Base: base, Source: "fixtures", Target: "fx"},
		{ID: "single", Base: base, Source: "single.txt", Target: "single.txt"},
		{ID: "gone", Base: base, Source: "missing", Target: "gone"},
	}}
	p := New(base, cfg, logging.NewCLI(&logs, slog.LevelInfo))

	bundle := filepath.Join(t.TempDir(), "bundle")
	require.NoError(t, p.CopyTestData(bundle))

	assert.FileExists(t, filepath.Join(bundle, "test_data", "fx", "input.json"))
	assert.FileExists(t, filepath.Join(bundle, "test_data", "single.txt"))
	assert.NoDirExists(t, filepath.Join(bundle, "test_data", "gone"))
	assert.True(t, strings.Contains(logs.String(), "test data source not found"), logs.String())
}

func TestCopyTestDataCreatesEmptyDirectory(t *testing.T) {
	t.Parallel()

	p := New(t.TempDir(), &config.Configuration{}, nil)
	bundle := filepath.Join(t.TempDir(), "bundle")
	require.NoError(t, p.CopyTestData(bundle))

	assert.DirExists(t, filepath.Join(bundle, "test_data"))
}
