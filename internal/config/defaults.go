package config

// Default values for the "layer 0" of the four-layer override chain.
const (
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultConnectTimeout    = "10s"
	defaultSearchResultLimit = 20
	defaultFilesetPolicy     = "content"
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the decode target (so unset TOML fields keep their defaults)
// and as the zero-config fallback when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
		},
		Cache:        CacheConfig{},
		Repositories: make(map[string]RepositoryConfig),
	}
}
