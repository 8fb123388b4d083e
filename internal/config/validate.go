package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/locomote-sh/locomote/internal/locosettings"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}

var validCachePolicies = map[string]bool{"none": true, "content": true, "app": true}

// Validate checks all configuration values and returns every error found
// (rather than stopping at the first), so a user sees the complete list
// of problems in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	for ref, repo := range cfg.Repositories {
		errs = append(errs, validateRepository(ref, &repo)...)
	}

	return errors.Join(errs...)
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if l.LogLevel != "" && !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: invalid value %q", l.LogLevel))
	}

	if l.LogFormat != "" && !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: invalid value %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if n.ConnectTimeout != "" {
		if _, err := time.ParseDuration(n.ConnectTimeout); err != nil {
			errs = append(errs, fmt.Errorf("network.connect_timeout: %w", err))
		}
	}

	return errs
}

func validateRepository(ref string, repo *RepositoryConfig) []error {
	var errs []error

	if _, err := locosettings.ParseRef(ref); err != nil {
		errs = append(errs, fmt.Errorf("repositories[%q]: %w", ref, err))
	}

	if repo.SearchResultLimit < 0 {
		errs = append(errs, fmt.Errorf("repositories[%q].search_result_limit: must be >= 0", ref))
	}

	for category, policy := range repo.FilesetCachePolicy {
		if !validCachePolicies[policy] {
			errs = append(errs, fmt.Errorf("repositories[%q].fileset_cache_policy[%q]: invalid value %q", ref, category, policy))
		}
	}

	return errs
}
