package dinghy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/logging"
	"github.com/cochaviz/dinghy/internal/platform"
)

// DiscoverPlatforms returns every platform the configuration and the host
// tooling make available: configured platforms sorted by id, Android NDK
// platforms, iOS platforms on macOS, then the host platform. A configured
// platform named "host" only contributes its env to the host platform.
func DiscoverPlatforms(cfg *config.Configuration, opts platform.Options, getenv func(string) string) ([]platform.Platform, error) {
	logger := logging.Ensure(opts.Logger)
	if cfg == nil {
		cfg = &config.Configuration{}
	}

	ids := make([]string, 0, len(cfg.Platforms))
	for id := range cfg.Platforms {
		if id == platform.HostID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []platform.Platform
	for _, id := range ids {
		p, err := platform.FromConfiguration(id, cfg.Platforms[id], opts)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", id, err)
		}
		out = append(out, p)
	}

	ndk, err := platform.FindNDK(getenv)
	switch {
	case err == nil:
		for _, p := range platform.AndroidPlatforms(ndk, cfg.Android, opts) {
			out = append(out, p)
		}
	case errors.Is(err, platform.ErrNoNDK):
		logger.Debug("android ndk not found, skipping android platforms")
	default:
		return nil, fmt.Errorf("discover android ndk: %w", err)
	}

	if hostOS == "darwin" {
		for _, p := range platform.IosPlatforms(opts) {
			out = append(out, p)
		}
	}

	host := platform.NewHost(opts)
	host.Env = cfg.Platforms[platform.HostID].Env
	return append(out, host), nil
}
