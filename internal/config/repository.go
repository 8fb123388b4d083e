package config

import (
	"fmt"
	"log/slog"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/filedb"
	"github.com/locomote-sh/locomote/internal/locosettings"
)

// CLIOverrides holds values parsed from persistent CLI flags, applied as
// the final layer of the four-layer override chain (defaults -> file ->
// env -> CLI).
type CLIOverrides struct {
	ConfigPath string
	Repo       string
}

// ResolvedRepository is the final product of the four-layer override
// chain: a repository reference plus its effective settings, consumed by
// the locomote CLI to build a registry.Repository.
type ResolvedRepository struct {
	Ref      string
	Settings *locosettings.Settings
	Alias    string
	Paused   bool

	SearchResultLimit int

	Logging LoggingConfig
	Network NetworkConfig
	Cache   CacheConfig

	filesetPolicy map[string]string
}

// CachePolicy implements filedb.CachePolicyFunc: the configured cache
// policy for category, or the content tier default when unconfigured
// (spec §3's categories default to best-effort, evictable caching).
func (rr *ResolvedRepository) CachePolicy(category string) cachelayout.CachePolicy {
	if policy, ok := rr.filesetPolicy[category]; ok {
		return cachelayout.CachePolicy(policy)
	}

	return cachelayout.CachePolicy(defaultFilesetPolicy)
}

var _ filedb.CachePolicyFunc = (&ResolvedRepository{}).CachePolicy

// MatchRepository finds a repository section in cfg by exact reference
// string or alias. An unconfigured ref is not an error: Locomote repos
// can be used ad hoc (spec: repositories are addressed by reference
// string, not only by pre-registered config).
func MatchRepository(cfg *Config, ref string) (string, RepositoryConfig) {
	if repo, ok := cfg.Repositories[ref]; ok {
		return ref, repo
	}

	for key, repo := range cfg.Repositories {
		if repo.Alias == ref {
			return key, repo
		}
	}

	return ref, RepositoryConfig{}
}

// ResolveRepository resolves one repository's full configuration: loads
// the config file, parses the reference string, and merges global config
// with section overrides and CLI/env overrides.
func ResolveRepository(env EnvOverrides, cli CLIOverrides, ref string, logger *slog.Logger) (*ResolvedRepository, *Config, error) {
	cfgPath := ResolveConfigPath(env, cli, logger)

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if ref == "" {
		ref = cli.Repo
	}

	if ref == "" {
		ref = env.Repo
	}

	if ref == "" {
		return nil, nil, fmt.Errorf("no repository specified — pass a reference string or set %s", EnvRepo)
	}

	resolved, err := resolveFromConfig(cfg, ref, logger)
	if err != nil {
		return nil, nil, err
	}

	return resolved, cfg, nil
}

// resolveFromConfig merges cfg's global sections with ref's repository
// section (matched by exact reference or alias) into a ResolvedRepository.
func resolveFromConfig(cfg *Config, ref string, logger *slog.Logger) (*ResolvedRepository, error) {
	matchedKey, repoCfg := MatchRepository(cfg, ref)

	settings, err := locosettings.ParseRef(matchedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid repository reference %q: %w", matchedKey, err)
	}

	if repoCfg.Username != "" {
		settings.Username = repoCfg.Username
	}

	if repoCfg.Password != "" {
		settings.Password = repoCfg.Password
	}

	resolved := &ResolvedRepository{
		Ref:               matchedKey,
		Settings:          settings,
		Alias:             repoCfg.Alias,
		Paused:            repoCfg.Paused != nil && *repoCfg.Paused,
		SearchResultLimit: defaultSearchResultLimit,
		Logging:           cfg.Logging,
		Network:           cfg.Network,
		Cache:             cfg.Cache,
		filesetPolicy:     repoCfg.FilesetCachePolicy,
	}

	if repoCfg.SearchResultLimit > 0 {
		resolved.SearchResultLimit = repoCfg.SearchResultLimit
	}

	applyCacheDefaults(&resolved.Cache)

	logger.Debug("repository resolved", "ref", resolved.Ref)

	return resolved, nil
}

// applyCacheDefaults fills any empty CacheConfig directory with its
// XDG-aware default (paths.go).
func applyCacheDefaults(c *CacheConfig) {
	if c.AppCacheDir == "" {
		c.AppCacheDir = DefaultAppCacheDir()
	}

	if c.ContentCacheDir == "" {
		c.ContentCacheDir = DefaultContentCacheDir()
	}

	if c.PackagedDir == "" {
		c.PackagedDir = DefaultPackagedDir()
	}

	if c.StagingDir == "" {
		c.StagingDir = DefaultStagingDir()
	}
}

// ResolveAllRepositories resolves every section in cfg.Repositories,
// excluding paused repositories unless includePaused is true. Used by
// `locomote serve` to mount every configured repository at startup.
func ResolveAllRepositories(cfg *Config, includePaused bool, logger *slog.Logger) ([]*ResolvedRepository, error) {
	resolved := make([]*ResolvedRepository, 0, len(cfg.Repositories))

	for ref := range cfg.Repositories {
		rr, err := resolveFromConfig(cfg, ref, logger)
		if err != nil {
			return nil, fmt.Errorf("resolving repository %q: %w", ref, err)
		}

		if !includePaused && rr.Paused {
			logger.Debug("skipping paused repository", "ref", ref)
			continue
		}

		resolved = append(resolved, rr)
	}

	return resolved, nil
}
