// Package registry implements the process-wide (but injectable) mapping
// from a content URL's authority and mount path to the repository that
// serves it (spec §4.7), grounded on the original implementation's
// LOContentAuthority / LOCMSRepository and LOBundle.
package registry

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/dispatch"
	"github.com/locomote-sh/locomote/internal/filedb"
	"github.com/locomote-sh/locomote/internal/handlers"
	"github.com/locomote-sh/locomote/internal/locosettings"
	"github.com/locomote-sh/locomote/internal/opqueue"
	"github.com/locomote-sh/locomote/internal/syncproto"
)

// Repository wires one content repository's File DB, cache layout,
// dispatcher, and sync protocol together, grounded on
// cms/LOCMSRepository.h.
type Repository struct {
	// MountPath is "account/repo" or "account/repo/~branch" (spec §4.7),
	// matching cms/LOCMSRepository.h's own mount-path convention.
	MountPath string

	DB         *filedb.DB
	Layout     *cachelayout.Layout
	Dispatcher *dispatch.Dispatcher
	Protocol   *syncproto.Protocol
	Settings   *locosettings.Settings
}

// MountPathFor derives a repository's mount path from its settings:
// "account/repo" when running the default branch, else
// "account/repo/~branch".
func MountPathFor(s *locosettings.Settings) string {
	mount := path.Join(s.Account, s.Repo)
	if s.Branch != locosettings.DefaultBranch {
		mount = path.Join(mount, "~"+s.Branch)
	}

	return mount
}

// NewRepository builds a Repository with a fresh Dispatcher, registering
// the standard files.api/search.api endpoints plus the bare
// "{account}/{repo}/{path...}" file-content endpoint (spec §4.6, in the
// order LOCMSRepoRequestHandler documents them), and wires db to
// layout/policyFor so handlers resolve cached content locations.
func NewRepository(
	settings *locosettings.Settings,
	db *filedb.DB,
	layout *cachelayout.Layout,
	queue *opqueue.Queue,
	fetcher syncproto.Fetcher,
	downloader syncproto.FilesetDownloader,
	resetFetcher syncproto.ResetFetcher,
	policyFor filedb.CachePolicyFunc,
	searchResultLimit int,
	logger *slog.Logger,
) *Repository {
	mount := MountPathFor(settings)

	db.SetCacheLayout(layout, policyFor)

	protocol := syncproto.NewProtocol(mount, db, queue, layout, settings, fetcher, downloader, resetFetcher, policyFor, logger)

	repo := &Repository{
		MountPath: mount,
		DB:        db,
		Layout:    layout,
		Protocol:  protocol,
		Settings:  settings,
	}

	dispatcher := dispatch.New()
	dispatcher.Register("files.api/{rest...}", handlers.NewFileHandler(db))
	dispatcher.Register("files.api", handlers.NewFileHandler(db))
	dispatcher.Register("search.api", handlers.NewSearchHandler(db, searchResultLimit))
	dispatcher.Register("{rest...}", handlers.NewContentFileHandler(repo))
	repo.Dispatcher = dispatcher

	return repo
}

// HasContent reports whether path ("category/rest...", relative to the
// repository's mount) resolves to a file with cached content, without
// going through the Dispatcher/handlers. Grounded on
// LOContentAuthority.hasContentForPath — a cheap probe handlers can use
// before attempting a full request round-trip.
func (r *Repository) HasContent(ctx context.Context, path string) bool {
	_, ok := r.LocalCacheLocation(ctx, path)
	return ok
}

// LocalCacheLocation resolves path to its on-disk cache location, or
// false if path names no file or the file has no cached content (e.g.
// deleted, or a category that isn't cached). Grounded on
// LOContentAuthority.localCacheLocationOfPath. path's leading segment is
// taken as the fileset category, matching the default path-root
// convention (cms/LOCMSFilesetCategoryPathRoot.h) — a category whose
// on-disk root diverges from its URL root isn't supported without a
// configuration surface to declare that mapping, which neither spec.md
// nor original_source's config format exposes.
func (r *Repository) LocalCacheLocation(ctx context.Context, path string) (string, bool) {
	category, rest, ok := handlers.SplitCategoryPath(path)
	if !ok {
		return "", false
	}

	_, loc, ok := r.DB.ResolveContentPath(ctx, category, rest)
	return loc, ok
}

// contentPathRelativeTo strips a repository's mount path from a content
// URL's path, returning the remainder and whether the URL is actually
// mounted under prefix.
func contentPathRelativeTo(prefix, full string) (string, bool) {
	prefix = strings.Trim(prefix, "/")
	full = strings.Trim(full, "/")

	if full == prefix {
		return "", true
	}

	if strings.HasPrefix(full, prefix+"/") {
		return full[len(prefix)+1:], true
	}

	return "", false
}
