package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSettleDelay is how long discovery waits for device managers to
	// settle before listing devices.
	DefaultSettleDelay = 100 * time.Millisecond
	// DefaultAndroidAPILevel is used for NDK compiler prefixes when none is configured.
	DefaultAndroidAPILevel = 21
)

// DefaultAndroidPreferredTriples is the Tier-1 preference applied when an
// Android device supports several ABIs.
var DefaultAndroidPreferredTriples = []string{"armv7-linux-androideabi", "aarch64-linux-android"}

// FileNames are the per-directory configuration files, in lookup order.
var FileNames = []string{".dinghy.toml", ".dinghy.yml", ".dinghy.yaml"}

// PlatformConfiguration declares a cross-compilation platform.
type PlatformConfiguration struct {
	Triple       string                          `toml:"triple" yaml:"triple"`
	Toolchain    string                          `toml:"toolchain" yaml:"toolchain"`
	DebMultiarch string                          `toml:"deb_multiarch" yaml:"deb_multiarch"`
	Env          map[string]string               `toml:"env" yaml:"env"`
	Overlays     map[string]OverlayConfiguration `toml:"overlays" yaml:"overlays"`
}

// OverlayConfiguration points at a directory of prebuilt target libraries.
type OverlayConfiguration struct {
	Path string `toml:"path" yaml:"path"`
}

// SSHDeviceConfiguration declares a device reachable with ssh and rsync.
type SSHDeviceConfiguration struct {
	Hostname string `toml:"hostname" yaml:"hostname"`
	Username string `toml:"username" yaml:"username"`
	Port     int    `toml:"port" yaml:"port"`
	// Path is the remote parent directory of installed bundles, /tmp when empty.
	Path     string   `toml:"path" yaml:"path"`
	Platform string   `toml:"platform" yaml:"platform"`
	Triples  []string `toml:"triples" yaml:"triples"`
}

// TestDataConfiguration declares a directory or file copied into bundles.
type TestDataConfiguration struct {
	ID string `toml:"-" yaml:"-"`
	// Base is the directory of the file that declared the entry.
	Base           string `toml:"-" yaml:"-"`
	Source         string `toml:"source" yaml:"source"`
	Target         string `toml:"target" yaml:"target"`
	CopyGitIgnored bool   `toml:"copy_git_ignored" yaml:"copy_git_ignored"`
}

// SourcePath returns Source resolved against Base.
func (t TestDataConfiguration) SourcePath() string {
	if filepath.IsAbs(t.Source) {
		return t.Source
	}
	return filepath.Join(t.Base, filepath.FromSlash(t.Source))
}

// AndroidConfiguration tunes Android platform discovery and device matching.
type AndroidConfiguration struct {
	APILevel         int      `toml:"api_level" yaml:"api_level"`
	PreferredTriples []string `toml:"preferred_triples" yaml:"preferred_triples"`
}

// LibvirtConfiguration enables virtual machines as SSH devices.
type LibvirtConfiguration struct {
	URI      string `toml:"uri" yaml:"uri"`
	Username string `toml:"username" yaml:"username"`
	Path     string `toml:"path" yaml:"path"`
	// Platforms maps a guest architecture to the platform building for it.
	Platforms map[string]string `toml:"platforms" yaml:"platforms"`
}

// Configuration is the merged view of every configuration file.
type Configuration struct {
	Platforms   map[string]PlatformConfiguration
	SSHDevices  map[string]SSHDeviceConfiguration
	TestData    []TestDataConfiguration
	Android     AndroidConfiguration
	Libvirt     *LibvirtConfiguration
	SettleDelay time.Duration
	// Files lists the files that contributed, nearest first.
	Files []string

	settleDelaySet bool
}

type fileConfiguration struct {
	Platforms   map[string]PlatformConfiguration  `toml:"platforms" yaml:"platforms"`
	SSHDevices  map[string]SSHDeviceConfiguration `toml:"ssh_devices" yaml:"ssh_devices"`
	TestData    map[string]TestDataConfiguration  `toml:"test_data" yaml:"test_data"`
	Android     *AndroidConfiguration             `toml:"android" yaml:"android"`
	Libvirt     *LibvirtConfiguration             `toml:"libvirt" yaml:"libvirt"`
	SettleDelay string                            `toml:"settle_delay" yaml:"settle_delay"`
}

// Loader locates and merges configuration files.
type Loader struct {
	// Home is searched for a .dinghy.toml after the project ancestors.
	Home string
	// UserConfig is an optional extra file consulted last.
	UserConfig string
}

// DefaultLoader uses the user's home and $XDG_CONFIG_HOME/dinghy/config.toml.
func DefaultLoader() Loader {
	userConfig, err := xdg.SearchConfigFile(filepath.Join("dinghy", "config.toml"))
	if err != nil {
		userConfig = ""
	}
	return Loader{Home: xdg.Home, UserConfig: userConfig}
}

// Files returns the configuration files that apply to startDir, nearest first.
func (l Loader) Files(startDir string) ([]string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolve start directory: %w", err)
	}

	var files []string
	seen := make(map[string]bool)
	visit := func(dir string) error {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if seen[candidate] {
				continue
			}
			if _, err := os.Stat(candidate); err == nil {
				seen[candidate] = true
				files = append(files, candidate)
			} else if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat %q: %w", candidate, err)
			}
		}
		return nil
	}

	for {
		if err := visit(dir); err != nil {
			return nil, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if l.Home != "" {
		if err := visit(l.Home); err != nil {
			return nil, err
		}
	}
	if l.UserConfig != "" && !seen[l.UserConfig] {
		if _, err := os.Stat(l.UserConfig); err == nil {
			files = append(files, l.UserConfig)
		}
	}
	return files, nil
}

// Load merges every applicable file. Nearer files win per key.
func (l Loader) Load(startDir string) (*Configuration, error) {
	files, err := l.Files(startDir)
	if err != nil {
		return nil, err
	}
	cfg := &Configuration{
		Platforms:  make(map[string]PlatformConfiguration),
		SSHDevices: make(map[string]SSHDeviceConfiguration),
	}
	for _, path := range files {
		fc, err := decodeFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.merge(path, fc); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads a single configuration file.
func LoadFile(path string) (*Configuration, error) {
	fc, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Configuration{
		Platforms:  make(map[string]PlatformConfiguration),
		SSHDevices: make(map[string]SSHDeviceConfiguration),
	}
	if err := cfg.merge(path, fc); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func decodeFile(path string) (fileConfiguration, error) {
	var fc fileConfiguration
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fc, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fc, fmt.Errorf("%s: failed to parse YAML: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return fc, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
	}
	return fc, nil
}

func (c *Configuration) merge(path string, fc fileConfiguration) error {
	c.Files = append(c.Files, path)
	base := filepath.Dir(path)

	for name, p := range fc.Platforms {
		if _, ok := c.Platforms[name]; ok {
			continue
		}
		if p.Toolchain != "" && !filepath.IsAbs(p.Toolchain) {
			p.Toolchain = filepath.Join(base, p.Toolchain)
		}
		for id, o := range p.Overlays {
			if o.Path != "" && !filepath.IsAbs(o.Path) {
				o.Path = filepath.Join(base, o.Path)
				p.Overlays[id] = o
			}
		}
		c.Platforms[name] = p
	}
	for name, d := range fc.SSHDevices {
		if _, ok := c.SSHDevices[name]; ok {
			continue
		}
		if d.Hostname == "" {
			return fmt.Errorf("%s: ssh device %q has no hostname", path, name)
		}
		c.SSHDevices[name] = d
	}
	for id, td := range fc.TestData {
		if c.hasTestData(id) {
			continue
		}
		td.ID = id
		td.Base = base
		if td.Target == "" {
			td.Target = id
		}
		c.TestData = append(c.TestData, td)
	}
	if fc.Android != nil {
		if c.Android.APILevel == 0 {
			c.Android.APILevel = fc.Android.APILevel
		}
		if len(c.Android.PreferredTriples) == 0 {
			c.Android.PreferredTriples = fc.Android.PreferredTriples
		}
	}
	if c.Libvirt == nil && fc.Libvirt != nil {
		c.Libvirt = fc.Libvirt
	}
	if !c.settleDelaySet && fc.SettleDelay != "" {
		d, err := time.ParseDuration(fc.SettleDelay)
		if err != nil {
			return fmt.Errorf("%s: invalid settle_delay %q: %w", path, fc.SettleDelay, err)
		}
		if d < 0 {
			return fmt.Errorf("%s: negative settle_delay %q", path, fc.SettleDelay)
		}
		c.SettleDelay = d
		c.settleDelaySet = true
	}
	return nil
}

func (c *Configuration) hasTestData(id string) bool {
	for _, td := range c.TestData {
		if td.ID == id {
			return true
		}
	}
	return false
}

func (c *Configuration) applyDefaults() {
	if c.Android.APILevel == 0 {
		c.Android.APILevel = DefaultAndroidAPILevel
	}
	if len(c.Android.PreferredTriples) == 0 {
		c.Android.PreferredTriples = append([]string(nil), DefaultAndroidPreferredTriples...)
	}
	if !c.settleDelaySet {
		c.SettleDelay = DefaultSettleDelay
	}
}
