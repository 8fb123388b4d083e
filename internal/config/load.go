package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file in a single decode, rejects any
// key the decode left unused, validates the result, and returns it. The
// [logging], [network] and [cache] sections and the quoted
// [repositories."account/repo"] sections all decode straight into Config.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", "path", path, "repository_count", len(cfg.Repositories))

	return cfg, nil
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error naming them. Repository sections are decoded directly into
// Config.Repositories by toml.Decode (TOML supports quoted keys containing
// "/"), so no separate raw-map pass is needed to recover them.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		keys = append(keys, key.String())
	}

	return fmt.Errorf("unknown config key(s): %s", strings.Join(keys, ", "))
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values (zero-config first run).
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", "path", path)

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// ResolveConfigPath determines the config file path: CLI flag > env var >
// platform default. The single correct implementation of config path
// resolution — PersistentPreRunE and every subcommand use it.
func ResolveConfigPath(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) string {
	cfgPath := DefaultConfigPath()
	source := "default"

	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
		source = "env"
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
		source = "cli"
	}

	logger.Debug("config path resolved", "path", cfgPath, "source", source)

	return cfgPath
}
