package registry

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/locomote-sh/locomote/internal/dispatch"
	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// Authority is a named endpoint (e.g. "locomote.sh") owning a collection
// of Repositories keyed by mount path (spec §4.7).
type Authority struct {
	Name         string
	Repositories []*Repository
}

// AddRepository appends repo to the authority's repository list,
// re-sorting by decreasing mount-path length so the longest-prefix match
// in Dispatch always finds the most specific mount.
func (a *Authority) AddRepository(repo *Repository) {
	a.Repositories = append(a.Repositories, repo)

	sort.SliceStable(a.Repositories, func(i, j int) bool {
		return len(a.Repositories[i].MountPath) > len(a.Repositories[j].MountPath)
	})
}

// findRepository returns the repository whose mount path is the longest
// prefix of path, and the path remainder relative to that mount.
func (a *Authority) findRepository(path string) (*Repository, string, bool) {
	for _, repo := range a.Repositories {
		if rest, ok := contentPathRelativeTo(repo.MountPath, path); ok {
			return repo, rest, true
		}
	}

	return nil, "", false
}

// Dispatch resolves path against this authority's repositories and
// forwards the remainder to the matched repository's dispatcher.
func (a *Authority) Dispatch(ctx context.Context, path string, query url.Values, resp dispatch.ResponseWriter) {
	repo, rest, ok := a.findRepository(path)
	if !ok {
		resp.RespondWithError(locoerrors.New(locoerrors.ErrNotFound, "no repository mounted for %q on authority %q", path, a.Name))
		return
	}

	repo.Dispatcher.Dispatch(ctx, rest, query, resp)
}

// parseContentURL splits a "content://{authority}/{rest}" URL into its
// authority and rest components.
func parseContentURL(raw string) (authority, rest string, ok bool) {
	const scheme = "content://"
	if !strings.HasPrefix(raw, scheme) {
		return "", "", false
	}

	trimmed := raw[len(scheme):]
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed, "", true
	}

	return trimmed[:idx], trimmed[idx+1:], true
}
