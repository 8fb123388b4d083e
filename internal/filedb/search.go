package filedb

import (
	"context"
	"database/sql"
	"time"

	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// DefaultSearchResultLimit is used when Search is called with limit <= 0
// (spec §4.6: "limit (default from searchResultLimit)").
const DefaultSearchResultLimit = 20

// Search runs a full-text query over the pages related table, joined to
// files, returning only published or packaged results (spec §4.6). Ranking
// uses SQLite FTS5's bm25(), ties broken by path ascending for
// determinism across repeated identical queries (Open Question (a)).
func (db *DB) Search(ctx context.Context, q string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchResultLimit
	}

	rows, err := db.sql.QueryContext(ctx, sqlSearchPages, db.repoID, q, limit)
	if err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "searching pages for %q", q)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var sr SearchResult
		var status string
		var contentType sql.NullString
		var size sql.NullInt64
		var updatedAt int64

		if err := rows.Scan(
			&sr.File.ID, &sr.File.Category, &sr.File.Path, &status, &sr.File.CommitID,
			&contentType, &size, &updatedAt, &sr.Title, &sr.Rank,
		); err != nil {
			return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "scanning search result")
		}

		sr.File.Status = FileStatus(status)
		sr.File.ContentType = contentType.String
		sr.File.Size = size.Int64
		sr.File.UpdatedAt = time.Unix(updatedAt, 0).UTC()

		out = append(out, sr)
	}

	if err := rows.Err(); err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "iterating search results")
	}

	return out, nil
}

const sqlSearchPages = `SELECT f.id, f.category, f.path, f.status, f.commit_id, f.content_type, f.size, f.updated_at,
	pages_fts.title, bm25(pages_fts) AS rank
	FROM pages_fts
	JOIN files f ON f.repo_id = pages_fts.repo_id AND f.id = pages_fts.id
	WHERE pages_fts.repo_id = ? AND pages_fts MATCH ? AND f.status IN ('published', 'packaged')
	ORDER BY rank ASC, f.path ASC
	LIMIT ?`
