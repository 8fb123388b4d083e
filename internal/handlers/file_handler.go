// Package handlers implements the Locomote repository API endpoints (spec
// §4.6) as internal/dispatch Handlers: file metadata/content/hierarchy
// lookups and full-text search, grounded on the original implementation's
// LOCMSRepoRequestHandler and LOCMSSearchHandler.
package handlers

import (
	"context"
	"mime"
	"path/filepath"
	"strconv"

	"github.com/locomote-sh/locomote/internal/dispatch"
	"github.com/locomote-sh/locomote/internal/filedb"
	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// FileHandler serves the files.api endpoints and file content requests
// (spec §4.6's endpoint table): list, get-by-id, content, siblings,
// children, descendants.
type FileHandler struct {
	db *filedb.DB
}

// NewFileHandler builds a FileHandler over db.
func NewFileHandler(db *filedb.DB) *FileHandler {
	return &FileHandler{db: db}
}

var _ dispatch.Handler = (*FileHandler)(nil)

// Handle implements dispatch.Handler. It is registered under
// "files.api/{rest...}" and dispatches internally on the captured rest
// path, since the trailing segment ("content"/"siblings"/"children"/
// "descendants") determines the reply shape rather than a distinct
// pattern per file ID.
func (h *FileHandler) Handle(ctx context.Context, req *dispatch.Request, resp dispatch.ResponseWriter) {
	rest := req.Param("rest")

	if rest == "" {
		h.handleList(ctx, req, resp)
		return
	}

	id, suffix := splitLast(rest)
	switch suffix {
	case "":
		h.handleGet(ctx, id, resp)
	case "content":
		h.handleContent(ctx, id, resp)
	case "siblings":
		h.handleRelated(ctx, id, resp, h.db.Siblings)
	case "children":
		h.handleRelated(ctx, id, resp, h.db.Children)
	case "descendants":
		h.handleRelated(ctx, id, resp, h.db.Descendants)
	default:
		// No trailing known suffix: the whole rest path is a file ID.
		h.handleGet(ctx, rest, resp)
	}
}

// splitLast splits "id/suffix" into (id, suffix). If rest has no slash,
// suffix is "".
func splitLast(rest string) (id, suffix string) {
	idx := lastSlash(rest)
	if idx < 0 {
		return rest, ""
	}

	return rest[:idx], rest[idx+1:]
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// handleList serves "files.api/", filtering on the equality parameters
// category/status/commit and the prefix parameter path (spec §4.6).
func (h *FileHandler) handleList(ctx context.Context, req *dispatch.Request, resp dispatch.ResponseWriter) {
	filter := filedb.Filter{
		Category:   req.QueryParam("category"),
		Status:     filedb.FileStatus(req.QueryParam("status")),
		PathPrefix: req.QueryParam("path"),
		CommitID:   req.QueryParam("commit"),
	}

	if lim := req.QueryParam("limit"); lim != "" {
		if n, err := strconv.Atoi(lim); err == nil {
			filter.Limit = n
		}
	}

	files, err := h.db.ListFiles(ctx, filter)
	if err != nil {
		resp.RespondWithError(err)
		return
	}

	_ = resp.RespondWithJSON(files)
}

func (h *FileHandler) handleGet(ctx context.Context, id string, resp dispatch.ResponseWriter) {
	rec, err := h.db.GetFile(ctx, id)
	if err != nil {
		resp.RespondWithError(err)
		return
	}

	_ = resp.RespondWithJSON(rec)
}

// handleContent serves a file's bytes from its resolved cache location,
// with the record's stored content type, or the type inferred from the
// file's extension when the record has none.
func (h *FileHandler) handleContent(ctx context.Context, id string, resp dispatch.ResponseWriter) {
	rec, err := h.db.GetFile(ctx, id)
	if err != nil {
		resp.RespondWithError(err)
		return
	}

	if rec.Status == filedb.StatusDeleted {
		resp.RespondWithError(locoerrors.New(locoerrors.ErrNotFound, "file %s is deleted", id))
		return
	}

	_, path, ok := h.db.CacheLocationForFileRecord(*rec)
	if !ok {
		resp.RespondWithError(locoerrors.New(locoerrors.ErrNotFound, "file %s has no cached content", id))
		return
	}

	mimeType := rec.ContentType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(rec.Path))
	}

	if err := resp.RespondWithFile(path, mimeType); err != nil {
		resp.RespondWithError(err)
	}
}

type relatedFunc func(ctx context.Context, ref filedb.FileRecord) ([]filedb.FileRecord, error)

func (h *FileHandler) handleRelated(ctx context.Context, id string, resp dispatch.ResponseWriter, related relatedFunc) {
	ref, err := h.db.GetFile(ctx, id)
	if err != nil {
		resp.RespondWithError(err)
		return
	}

	files, err := related(ctx, *ref)
	if err != nil {
		resp.RespondWithError(err)
		return
	}

	_ = resp.RespondWithJSON(files)
}
