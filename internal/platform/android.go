package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/toolchain"
)

// AndroidTriples are the targets the NDK LLVM toolchain can build.
var AndroidTriples = []arch.Triple{
	"aarch64-linux-android",
	"armv7-linux-androideabi",
	"i686-linux-android",
	"x86_64-linux-android",
}

// ErrNoNDK is returned when no Android NDK can be located.
var ErrNoNDK = errors.New("android ndk not found")

// FindNDK locates an Android NDK from the usual environment variables.
// Explicit NDK variables win; otherwise the highest versioned NDK under the
// SDK's ndk directory is used, then the legacy ndk-bundle.
func FindNDK(getenv func(string) string) (string, error) {
	for _, key := range []string{"ANDROID_NDK_HOME", "ANDROID_NDK_ROOT", "ANDROID_NDK"} {
		if dir := getenv(key); dir != "" && isDir(dir) {
			return dir, nil
		}
	}
	for _, key := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		sdk := getenv(key)
		if sdk == "" {
			continue
		}
		if ndk, err := HighestNDK(filepath.Join(sdk, "ndk")); err == nil {
			return ndk, nil
		}
		if bundle := filepath.Join(sdk, "ndk-bundle"); isDir(bundle) {
			return bundle, nil
		}
	}
	return "", ErrNoNDK
}

// HighestNDK returns the subdirectory of dir with the highest semantic
// version name. Non-version names are ignored.
func HighestNDK(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	var (
		best     *semver.Version
		bestName string
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := semver.NewVersion(entry.Name())
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestName = v, entry.Name()
		}
	}
	if best == nil {
		return "", fmt.Errorf("%s: %w", dir, ErrNoNDK)
	}
	return filepath.Join(dir, bestName), nil
}

// NDKHostTag returns the prebuilt directory name for the running host.
func NDKHostTag() string {
	switch runtime.GOOS {
	case "darwin":
		return "darwin-x86_64"
	case "windows":
		return "windows-x86_64"
	default:
		return "linux-x86_64"
	}
}

// AndroidPlatforms creates an auto-android-<arch> platform per AndroidTriples
// entry using the NDK at ndk.
func AndroidPlatforms(ndk string, android config.AndroidConfiguration, opts Options) []*RegularPlatform {
	apiLevel := android.APILevel
	if apiLevel == 0 {
		apiLevel = config.DefaultAndroidAPILevel
	}
	out := make([]*RegularPlatform, 0, len(AndroidTriples))
	for _, triple := range AndroidTriples {
		tc := toolchain.AndroidNDK(ndk, NDKHostTag(), triple, apiLevel)
		if !isDir(tc.BinDir) {
			opts.logger().Debug("ndk toolchain missing", "bin_dir", tc.BinDir)
			continue
		}
		id := "auto-android-" + androidPlatformSuffix(triple)
		out = append(out, NewRegular(id, triple, tc, config.PlatformConfiguration{Triple: string(triple)}, opts))
	}
	return out
}

func androidPlatformSuffix(triple arch.Triple) string {
	switch triple.Architecture() {
	case arch.ARMV7L:
		return "armv7"
	default:
		return triple.Architecture().String()
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
