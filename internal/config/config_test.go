package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadMergesNearestFirst(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "ws", "app")
	home := filepath.Join(base, "home")

	writeFile(t, filepath.Join(project, ".dinghy.toml"), `
settle_delay = "250ms"

[platforms.rpi]
triple = "armv7-unknown-linux-gnueabihf"
toolchain = "toolchains/rpi"

[platforms.rpi.overlays.sdl]
path = "overlays/sdl"

[ssh_devices.pi]
hostname = "pi.local"
username = "pi"
platform = "rpi"

[test_data.fixtures]
source = "testdata"
`)
	writeFile(t, filepath.Join(base, "ws", ".dinghy.yml"), `
platforms:
  rpi:
    triple: overridden-triple
  jetson:
    triple: aarch64-unknown-linux-gnu
    deb_multiarch: aarch64-linux-gnu
ssh_devices:
  jetson:
    hostname: 10.0.0.5
    port: 2222
    path: /data
test_data:
  fixtures:
    source: elsewhere
  models:
    source: models
    target: m
    copy_git_ignored: true
android:
  preferred_triples: [aarch64-linux-android]
`)
	writeFile(t, filepath.Join(home, ".dinghy.toml"), `
[libvirt]
uri = "qemu:///system"
username = "dev"

[libvirt.platforms]
aarch64 = "jetson"
`)

	cfg, err := Loader{Home: home}.Load(project)
	require.NoError(t, err)

	require.Len(t, cfg.Files, 3)
	assert.Equal(t, filepath.Join(project, ".dinghy.toml"), cfg.Files[0])

	rpi := cfg.Platforms["rpi"]
	assert.Equal(t, "armv7-unknown-linux-gnueabihf", rpi.Triple)
	assert.Equal(t, filepath.Join(project, "toolchains", "rpi"), rpi.Toolchain)
	assert.Equal(t, filepath.Join(project, "overlays", "sdl"), rpi.Overlays["sdl"].Path)
	assert.Equal(t, "aarch64-linux-gnu", cfg.Platforms["jetson"].DebMultiarch)

	assert.Equal(t, 2222, cfg.SSHDevices["jetson"].Port)
	assert.Equal(t, "rpi", cfg.SSHDevices["pi"].Platform)

	require.Len(t, cfg.TestData, 2)
	byID := map[string]TestDataConfiguration{}
	for _, td := range cfg.TestData {
		byID[td.ID] = td
	}
	assert.Equal(t, filepath.Join(project, "testdata"), byID["fixtures"].SourcePath())
	assert.Equal(t, "fixtures", byID["fixtures"].Target)
	assert.Equal(t, filepath.Join(base, "ws", "models"), byID["models"].SourcePath())
	assert.True(t, byID["models"].CopyGitIgnored)

	assert.Equal(t, []string{"aarch64-linux-android"}, cfg.Android.PreferredTriples)
	assert.Equal(t, DefaultAndroidAPILevel, cfg.Android.APILevel)
	require.NotNil(t, cfg.Libvirt)
	assert.Equal(t, "jetson", cfg.Libvirt.Platforms["aarch64"])
	assert.Equal(t, 250*time.Millisecond, cfg.SettleDelay)
}

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	t.Parallel()

	cfg, err := Loader{}.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultSettleDelay, cfg.SettleDelay)
	assert.Equal(t, DefaultAndroidPreferredTriples, cfg.Android.PreferredTriples)
	assert.Nil(t, cfg.Libvirt)
}

func TestLoadExplicitZeroSettleDelay(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "app")
	writeFile(t, filepath.Join(project, ".dinghy.toml"), "settle_delay = \"0s\"\n")
	writeFile(t, filepath.Join(base, ".dinghy.toml"), "settle_delay = \"500ms\"\n")

	cfg, err := Loader{}.Load(project)
	require.NoError(t, err)
	assert.Zero(t, cfg.SettleDelay)

	single, err := LoadFile(filepath.Join(project, ".dinghy.toml"))
	require.NoError(t, err)
	assert.Zero(t, single.SettleDelay)
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	t.Parallel()

	t.Run("ssh device without hostname", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".dinghy.toml")
		writeFile(t, path, "[ssh_devices.broken]\nusername = \"x\"\n")
		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "has no hostname")
	})

	t.Run("bad settle delay", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".dinghy.yml")
		writeFile(t, path, "settle_delay: soon\n")
		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "invalid settle_delay")
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".dinghy.toml")
		writeFile(t, path, "[platforms\n")
		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "failed to parse TOML")
	})
}
