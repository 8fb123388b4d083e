package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "LOCOMOTE_CONFIG"
	EnvRepo   = "LOCOMOTE_REPO"
)

// EnvOverrides holds values derived from environment variables. Resolved
// by ReadEnvOverrides; callers apply the relevant fields themselves.
type EnvOverrides struct {
	ConfigPath string // LOCOMOTE_CONFIG: override config file path
	Repo       string // LOCOMOTE_REPO: default repository reference
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Does not modify a Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Repo:       os.Getenv(EnvRepo),
	}
}
