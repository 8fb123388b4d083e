package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoadOrDefault_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), testLogger())
	require.NoError(t, err)
	assert.Equal(t, defaultLogLevel, cfg.Logging.LogLevel)
	assert.Empty(t, cfg.Repositories)
}

func TestLoad_ParsesGlobalAndRepositorySections(t *testing.T) {
	path := writeConfig(t, `
[logging]
log_level = "debug"

[network]
connect_timeout = "5s"

[repositories."acme/site"]
alias = "acme-site"
search_result_limit = 50

[repositories."acme/site".fileset_cache_policy]
pages = "app"
assets = "content"
`)

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)

	require.Contains(t, cfg.Repositories, "acme/site")
	repo := cfg.Repositories["acme/site"]
	assert.Equal(t, "acme-site", repo.Alias)
	assert.Equal(t, 50, repo.SearchResultLimit)
	assert.Equal(t, "app", repo.FilesetCachePolicy["pages"])
	assert.Equal(t, "5s", cfg.Network.ConnectTimeout)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `bogus_key = "x"`)

	_, err := Load(path, testLogger())
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
[logging]
log_level = "noisy"
`)

	_, err := Load(path, testLogger())
	assert.Error(t, err)
}

func TestResolveRepository_MergesGlobalAndSectionOverrides(t *testing.T) {
	path := writeConfig(t, `
[repositories."acme/site"]
search_result_limit = 99

[repositories."acme/site".fileset_cache_policy]
pages = "app"
`)

	rr, _, err := ResolveRepository(EnvOverrides{}, CLIOverrides{ConfigPath: path}, "acme/site", testLogger())
	require.NoError(t, err)

	assert.Equal(t, "acme/site", rr.Settings.Account+"/"+rr.Settings.Repo)
	assert.Equal(t, 99, rr.SearchResultLimit)
	assert.Equal(t, "app", string(rr.CachePolicy("pages")))
	assert.Equal(t, "content", string(rr.CachePolicy("assets")))
	assert.NotEmpty(t, rr.Cache.AppCacheDir)
}

func TestResolveRepository_UnconfiguredRefStillResolves(t *testing.T) {
	path := writeConfig(t, ``)

	rr, _, err := ResolveRepository(EnvOverrides{}, CLIOverrides{ConfigPath: path}, "acme/other", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "acme", rr.Settings.Account)
	assert.Equal(t, defaultSearchResultLimit, rr.SearchResultLimit)
}

func TestResolveRepository_MatchesByAlias(t *testing.T) {
	path := writeConfig(t, `
[repositories."acme/site"]
alias = "prod"
`)

	rr, _, err := ResolveRepository(EnvOverrides{}, CLIOverrides{ConfigPath: path}, "prod", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "acme/site", rr.Ref)
}

func TestResolveAllRepositories_SkipsPaused(t *testing.T) {
	path := writeConfig(t, `
[repositories."acme/site"]
alias = "site"

[repositories."acme/paused"]
paused = true
`)

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)

	active, err := ResolveAllRepositories(cfg, false, testLogger())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "acme/site", active[0].Ref)

	all, err := ResolveAllRepositories(cfg, true, testLogger())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
