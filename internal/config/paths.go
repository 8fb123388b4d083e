package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// appName is the application directory name used across all platforms.
const appName = "locomote"

// configFileName is the default config file name.
const configFileName = "config.toml"

// DefaultConfigDir returns the platform-specific directory for config
// files. On Linux, respects XDG_CONFIG_HOME (default ~/.config/locomote).
// On macOS, uses ~/Library/Application Support/locomote.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxXDGDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the directory for data that persists until the
// app is uninstalled: the app cache tier (spec §4.2) and the files.db
// metadata database live here. On Linux, respects XDG_DATA_HOME.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxXDGDir("XDG_DATA_HOME", home, filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultCacheDir returns the directory for data the host OS may evict
// at any time: the content cache tier and the staging directory used
// for in-flight fileset downloads. On Linux, respects XDG_CACHE_HOME.
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxXDGDir("XDG_CACHE_HOME", home, ".cache")
	case platformDarwin:
		return filepath.Join(home, "Library", "Caches", appName)
	default:
		return filepath.Join(home, ".cache", appName)
	}
}

// linuxXDGDir returns $envVar/appName if envVar is set, else home/fallback/appName.
func linuxXDGDir(envVar, home, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file,
// used when neither LOCOMOTE_CONFIG nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultAppCacheDir returns the default app-tier cache root (spec §4.2's
// <appCache>), persisted alongside application data.
func DefaultAppCacheDir() string {
	return filepath.Join(DefaultDataDir(), "app-cache")
}

// DefaultContentCacheDir returns the default content-tier cache root
// (spec §4.2's <contentCache>), freely evictable by the host OS.
func DefaultContentCacheDir() string {
	return filepath.Join(DefaultCacheDir(), "content-cache")
}

// DefaultPackagedDir returns the default packaged-tier root (spec §4.2's
// <appBundle>). Locomote has no notion of a bundled install, so this
// defaults to an empty, caller-provided directory alongside app data;
// a server operator with a pre-packaged fileset snapshot overrides it
// via CacheConfig.PackagedDir.
func DefaultPackagedDir() string {
	return filepath.Join(DefaultDataDir(), "packaged")
}

// DefaultStagingDir returns the default staging root (spec §4.2's
// <staging>) used for atomic fileset extraction.
func DefaultStagingDir() string {
	return filepath.Join(DefaultCacheDir(), "staging")
}
