package handlers

import (
	"context"
	"strconv"

	"github.com/locomote-sh/locomote/internal/dispatch"
	"github.com/locomote-sh/locomote/internal/filedb"
)

// SearchHandler serves search.api, performing a full-text search of page
// content (spec §4.6). Searches are only possible over pages, the one
// related-table content type Locomote indexes out of the box.
type SearchHandler struct {
	db                *filedb.DB
	searchResultLimit int
}

// NewSearchHandler builds a SearchHandler over db. defaultLimit is used
// when a request doesn't supply its own "limit" parameter; 0 falls back
// to filedb.DefaultSearchResultLimit.
func NewSearchHandler(db *filedb.DB, defaultLimit int) *SearchHandler {
	if defaultLimit <= 0 {
		defaultLimit = filedb.DefaultSearchResultLimit
	}

	return &SearchHandler{db: db, searchResultLimit: defaultLimit}
}

var _ dispatch.Handler = (*SearchHandler)(nil)

// Handle implements dispatch.Handler.
func (h *SearchHandler) Handle(ctx context.Context, req *dispatch.Request, resp dispatch.ResponseWriter) {
	q := req.QueryParam("q")

	limit := h.searchResultLimit
	if raw := req.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := h.db.Search(ctx, q, limit)
	if err != nil {
		resp.RespondWithError(err)
		return
	}

	_ = resp.RespondWithJSON(results)
}
