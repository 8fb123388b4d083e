// Package cachelayout maps logical file records onto on-disk locations
// across the packaged, app, and content cache tiers (spec §4.2), and
// manages the staging directory used for in-flight downloads.
package cachelayout

import (
	"fmt"
	"os"
	"path/filepath"
)

// Tier identifies one of the three cache locations a file's bytes can live
// in, in decreasing order of lifetime guarantee.
type Tier int

const (
	// TierNone means the file is not cached locally at all.
	TierNone Tier = iota
	// TierPackaged is the immutable, read-only tier shipped with the app.
	TierPackaged
	// TierApp persists until the app is uninstalled.
	TierApp
	// TierContent may be evicted by the host OS at any time.
	TierContent
)

// String implements fmt.Stringer.
func (t Tier) String() string {
	switch t {
	case TierPackaged:
		return "packaged"
	case TierApp:
		return "app"
	case TierContent:
		return "content"
	default:
		return "none"
	}
}

// CachePolicy is one of the three fileset cache policies from spec §3.
type CachePolicy string

// Fileset cache policy values.
const (
	CacheNone    CachePolicy = "none"
	CacheContent CachePolicy = "content"
	CacheApp     CachePolicy = "app"
)

// dirPermissions matches the teacher's standard directory permission.
const dirPermissions = 0o755

// Layout holds the four base directories for one authority, following the
// persisted-layout table in spec §6:
//
//	<appCache>/<authority>/<account>/<repo>/<branch>/...
//	<contentCache>/<authority>/.../cache/{category}/{path...}
//	<appBundle>/packaged/<authority>/.../{category}/{path...}
//	<staging>/<authority>/.../<opID>/...
type Layout struct {
	AppCacheDir     string
	ContentCacheDir string
	PackagedDir     string
	StagingDir      string
	Authority       string
	Account         string
	Repo            string
	Branch          string
}

// repoSubpath is the "<authority>/<account>/<repo>/<branch>" segment shared
// by all tiers.
func (l *Layout) repoSubpath() string {
	return filepath.Join(l.Authority, l.Account, l.Repo, l.Branch)
}

// DBPath returns the path of the repository's metadata database.
func (l *Layout) DBPath() string {
	return filepath.Join(l.AppCacheDir, l.repoSubpath(), "files.db")
}

// DirFor returns the cache directory for a fileset category in the given
// tier. Returns ok=false for TierNone and TierPackaged — packaged paths are
// resolved per-file via PackagedPathFor, never as a bare directory (spec:
// "Packaged location is never returned here" — mirrors
// filedb.CacheLocationForFileset).
func (l *Layout) DirFor(tier Tier, category string) (dir string, ok bool) {
	switch tier {
	case TierApp:
		return filepath.Join(l.AppCacheDir, l.repoSubpath(), "cache", category), true
	case TierContent:
		return filepath.Join(l.ContentCacheDir, l.repoSubpath(), "cache", category), true
	default:
		return "", false
	}
}

// PathFor resolves the on-disk path of a file at the given tier, category,
// and repo-relative path.
func (l *Layout) PathFor(tier Tier, category, path string) (string, bool) {
	switch tier {
	case TierPackaged:
		return filepath.Join(l.PackagedDir, l.repoSubpath(), category, path), true
	case TierApp, TierContent:
		dir, ok := l.DirFor(tier, category)
		if !ok {
			return "", false
		}

		return filepath.Join(dir, path), true
	default:
		return "", false
	}
}

// Resolve implements the four-step tier decision from spec §4.2:
//  1. If status==packaged -> packaged tier.
//  2. Else if fileset.cache==app -> app tier.
//  3. Else if fileset.cache==content -> content tier.
//  4. Else -> not cached.
func Resolve(status string, policy CachePolicy) Tier {
	if status == "packaged" {
		return TierPackaged
	}

	switch policy {
	case CacheApp:
		return TierApp
	case CacheContent:
		return TierContent
	default:
		return TierNone
	}
}

// EnsureDirs creates the app cache, content cache, and staging base
// directories for this layout if absent. The read-only packaged directory
// is not created.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.AppCacheDir, l.ContentCacheDir, l.StagingDir} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return fmt.Errorf("cachelayout: creating %s: %w", dir, err)
		}
	}

	return nil
}
