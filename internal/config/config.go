// Package config loads and resolves Locomote's on-disk configuration:
// global logging/network/cache settings plus one section per mounted
// repository, keyed by the repository's reference string (spec §6).
//
// Grounded on the teacher's internal/config package: a typed Config
// struct decoded from TOML with BurntSushi/toml, a four-layer override
// chain (defaults -> file -> env -> CLI), and XDG-aware default paths.
package config

// Config is the root of a parsed config.toml.
type Config struct {
	Logging      LoggingConfig
	Network      NetworkConfig
	Cache        CacheConfig
	Repositories map[string]RepositoryConfig
}

// LoggingConfig controls the slog handler built by the locomote CLI.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the HTTP transport used by internal/lococlient.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CacheConfig overrides the four base directories cachelayout.Layout
// resolves files under (spec §4.2/§6). Empty fields fall back to the
// XDG-aware defaults in paths.go.
type CacheConfig struct {
	AppCacheDir     string `toml:"app_cache_dir"`
	ContentCacheDir string `toml:"content_cache_dir"`
	PackagedDir     string `toml:"packaged_dir"`
	StagingDir      string `toml:"staging_dir"`
}

// RepositoryConfig is one `[repositories."account/repo/branch"]` section.
type RepositoryConfig struct {
	Alias              string            `toml:"alias"`
	Paused             *bool             `toml:"paused"`
	Username           string            `toml:"username"`
	Password           string            `toml:"password"`
	SearchResultLimit  int               `toml:"search_result_limit"`
	FilesetCachePolicy map[string]string `toml:"fileset_cache_policy"`
}
