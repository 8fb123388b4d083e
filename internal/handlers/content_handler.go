package handlers

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"github.com/locomote-sh/locomote/internal/dispatch"
	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// ContentResolver resolves a repository-relative content path
// ("category/rest...") to its on-disk cache location. Implemented by
// *registry.Repository's LocalCacheLocation.
type ContentResolver interface {
	LocalCacheLocation(ctx context.Context, path string) (string, bool)
}

// ContentFileHandler serves the bare "{account}/{repo}/{path...}" file
// endpoint (spec §4.6's first table row): file bytes with MIME inferred
// from extension. Grounded on
// LOContentAuthority/LOContentProvider's path-to-cached-content lookup.
type ContentFileHandler struct {
	resolver ContentResolver
}

// NewContentFileHandler builds a ContentFileHandler over resolver.
func NewContentFileHandler(resolver ContentResolver) *ContentFileHandler {
	return &ContentFileHandler{resolver: resolver}
}

var _ dispatch.Handler = (*ContentFileHandler)(nil)

// Handle implements dispatch.Handler. It is registered under the
// lowest-specificity "{rest...}" pattern, so it only ever receives paths
// that didn't match "files.api"/"search.api".
func (h *ContentFileHandler) Handle(ctx context.Context, req *dispatch.Request, resp dispatch.ResponseWriter) {
	path := req.Param("rest")

	loc, ok := h.resolver.LocalCacheLocation(ctx, path)
	if !ok {
		resp.RespondWithError(locoerrors.New(locoerrors.ErrNotFound, "no file at %q", path))
		return
	}

	if err := resp.RespondWithFile(loc, mime.TypeByExtension(filepath.Ext(loc))); err != nil {
		resp.RespondWithError(err)
	}
}

// SplitCategoryPath splits "category/rest/of/path" into its leading
// category segment and the remainder. Shared with
// internal/registry.Repository.LocalCacheLocation, which resolves a
// content path the same way without going through the Dispatcher.
func SplitCategoryPath(p string) (category, rest string, ok bool) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", "", false
	}

	idx := strings.Index(p, "/")
	if idx < 0 {
		return p, "", true
	}

	return p[:idx], p[idx+1:], true
}
