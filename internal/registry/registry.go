package registry

import (
	"context"
	"net/url"
	"sync"

	"github.com/locomote-sh/locomote/internal/dispatch"
	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// Registry maps authority name to Authority. It is built as an injectable
// value rather than a process-wide singleton (Design Note, spec §9), so a
// server process can hold more than one Registry (e.g. one per test).
type Registry struct {
	mu          sync.RWMutex
	authorities map[string]*Authority
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{authorities: make(map[string]*Authority)}
}

// AddRepository registers repo under authorityName, creating the
// Authority if this is its first repository. The authorities map is
// replaced wholesale (copy-on-write) so concurrent readers never observe
// a partially updated map.
func (r *Registry) AddRepository(authorityName string, repo *Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*Authority, len(r.authorities)+1)
	for name, a := range r.authorities {
		next[name] = a
	}

	existing, ok := next[authorityName]
	if !ok {
		existing = &Authority{Name: authorityName}
	} else {
		// Copy so the previous snapshot (held by any in-flight reader) is
		// left untouched.
		copied := *existing
		copied.Repositories = append([]*Repository(nil), existing.Repositories...)
		existing = &copied
	}

	existing.AddRepository(repo)
	next[authorityName] = existing
	r.authorities = next
}

// Authority returns the named authority, or nil if none is registered.
func (r *Registry) Authority(name string) *Authority {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.authorities[name]
}

// Dispatch parses a "content://{authority}/{rest}" URL, resolves its
// authority and mounted repository, and forwards the request (spec
// §4.7).
func (r *Registry) Dispatch(ctx context.Context, contentURL string, query url.Values, resp dispatch.ResponseWriter) {
	authorityName, rest, ok := parseContentURL(contentURL)
	if !ok {
		resp.RespondWithError(locoerrors.New(locoerrors.ErrInvalidPath, "not a content URL: %q", contentURL))
		return
	}

	a := r.Authority(authorityName)
	if a == nil {
		resp.RespondWithError(locoerrors.New(locoerrors.ErrNotFound, "no authority registered for %q", authorityName))
		return
	}

	a.Dispatch(ctx, rest, query, resp)
}
