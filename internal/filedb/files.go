package filedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// CachePolicyFunc resolves a fileset category to its configured cache
// policy (app/content/none). It is owned by repository configuration, not
// by the file database, so it is injected rather than stored in SQL.
type CachePolicyFunc func(category string) cachelayout.CachePolicy

// SetCacheLayout wires the on-disk cache layout and per-category cache
// policy used by CacheLocationForFileset and CacheLocationForFileRecord.
// Read paths that don't need cache locations work without calling this.
func (db *DB) SetCacheLayout(layout *cachelayout.Layout, policyFor CachePolicyFunc) {
	db.layout = layout
	db.policyFor = policyFor
}

// MergeUpdates applies one sync manifest transactionally: upserts files
// rows (advancing commit_id per row), marks deleted file IDs, and upserts
// pages rows (and their pages_fts shadow) carried inline. A failed merge
// leaves the database at its pre-merge state (spec §4.1).
func (db *DB) MergeUpdates(ctx context.Context, d Delta) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "beginning merge transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	for _, r := range d.Upserts {
		if _, err := tx.ExecContext(ctx, sqlUpsertFile,
			r.ID, db.repoID, r.Category, r.Path, string(r.Status), r.CommitID,
			r.ContentType, r.Size, r.UpdatedAt.Unix(),
		); err != nil {
			return locoerrors.Wrap(locoerrors.ErrDB, err, "upserting file %s", r.ID)
		}
	}

	for _, id := range d.Deletes {
		if _, err := tx.ExecContext(ctx, sqlMarkFileDeleted, db.repoID, id); err != nil {
			return locoerrors.Wrap(locoerrors.ErrDB, err, "marking file %s deleted", id)
		}
	}

	for _, p := range d.Pages {
		if _, err := tx.ExecContext(ctx, sqlUpsertPage, p.ID, db.repoID, p.Version, p.Title, p.Content); err != nil {
			return locoerrors.Wrap(locoerrors.ErrDB, err, "upserting page %s", p.ID)
		}
		if _, err := tx.ExecContext(ctx, sqlDeletePageFTS, db.repoID, p.ID); err != nil {
			return locoerrors.Wrap(locoerrors.ErrDB, err, "clearing fts row for page %s", p.ID)
		}
		if _, err := tx.ExecContext(ctx, sqlInsertPageFTS, p.ID, db.repoID, p.Title, p.Content); err != nil {
			return locoerrors.Wrap(locoerrors.ErrDB, err, "indexing page %s", p.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "committing merge transaction")
	}

	return nil
}

// PruneRelated deletes pages rows whose version no longer matches their
// owning file's commit_id (invariant P1). Idempotent.
func (db *DB) PruneRelated(ctx context.Context) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "beginning prune transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	rows, err := tx.QueryContext(ctx, sqlStalePageIDs, db.repoID)
	if err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "finding stale pages")
	}

	var staleIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return locoerrors.Wrap(locoerrors.ErrDB, err, "scanning stale page id")
		}
		staleIDs = append(staleIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return locoerrors.Wrap(locoerrors.ErrDB, err, "iterating stale pages")
	}
	rows.Close()

	for _, id := range staleIDs {
		if _, err := tx.ExecContext(ctx, sqlDeletePage, db.repoID, id); err != nil {
			return locoerrors.Wrap(locoerrors.ErrDB, err, "deleting stale page %s", id)
		}
		if _, err := tx.ExecContext(ctx, sqlDeletePageFTS, db.repoID, id); err != nil {
			return locoerrors.Wrap(locoerrors.ErrDB, err, "deleting stale fts row %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "committing prune transaction")
	}

	return nil
}

// MarkDownloaded transitions a file from packaged to published. It is a
// no-op on an already-published row (invariant R3) and fails if the row is
// absent or deleted.
func (db *DB) MarkDownloaded(ctx context.Context, id string) error {
	rec, err := db.GetFile(ctx, id)
	if err != nil {
		return err
	}

	switch rec.Status {
	case StatusPublished:
		return nil
	case StatusDeleted:
		return locoerrors.New(locoerrors.ErrNotFound, "file %s is deleted", id)
	}

	if _, err := db.sql.ExecContext(ctx, sqlMarkPublished, db.repoID, id); err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "marking file %s published", id)
	}

	return nil
}

// CacheLocationForFileset returns the directory holding a category's bytes
// in its configured tier, or ok=false if the category's cache policy is
// none. The packaged tier is never returned here (spec §4.1).
func (db *DB) CacheLocationForFileset(category string) (tier cachelayout.Tier, dir string, ok bool) {
	if db.layout == nil || db.policyFor == nil {
		return cachelayout.TierNone, "", false
	}

	policy := db.policyFor(category)
	t := cachelayout.Resolve(string(StatusPublished), policy)

	dir, ok = db.layout.DirFor(t, category)
	return t, dir, ok
}

// CacheLocationForFileRecord resolves the on-disk path for one file's
// bytes: the packaged path if the record is still packaged, else its
// configured non-packaged tier. ok is false if the record isn't cachable.
func (db *DB) CacheLocationForFileRecord(r FileRecord) (tier cachelayout.Tier, p string, ok bool) {
	if db.layout == nil || db.policyFor == nil {
		return cachelayout.TierNone, "", false
	}

	policy := db.policyFor(r.Category)
	t := cachelayout.Resolve(string(r.Status), policy)

	p, ok = db.layout.PathFor(t, r.Category, r.Path)
	return t, p, ok
}

// GetFile returns one file record by ID.
func (db *DB) GetFile(ctx context.Context, id string) (*FileRecord, error) {
	row := db.sql.QueryRowContext(ctx, sqlGetFile, db.repoID, id)

	rec, err := scanFileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, locoerrors.New(locoerrors.ErrNotFound, "file %s not found", id)
	}
	if err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "fetching file %s", id)
	}

	return rec, nil
}

// GetFileByPath returns one file record by category and exact path,
// relying on the unique (repo_id, category, path) index over non-deleted
// rows.
func (db *DB) GetFileByPath(ctx context.Context, category, path string) (*FileRecord, error) {
	row := db.sql.QueryRowContext(ctx, sqlGetFileByPath, db.repoID, category, path)

	rec, err := scanFileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, locoerrors.New(locoerrors.ErrNotFound, "file %s/%s not found", category, path)
	}
	if err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "fetching file %s/%s", category, path)
	}

	return rec, nil
}

// ResolveContentPath looks up the file at category/relPath and resolves
// its on-disk cache location, answering both "does this path have
// content" and "where is it" in one round-trip. ok is false if the path
// names no file, the file is deleted, or the file isn't cachable.
// Grounded on LOContentAuthority.hasContentForPath/localCacheLocationOfPath.
func (db *DB) ResolveContentPath(ctx context.Context, category, relPath string) (rec *FileRecord, loc string, ok bool) {
	rec, err := db.GetFileByPath(ctx, category, relPath)
	if err != nil || rec.Status == StatusDeleted {
		return nil, "", false
	}

	_, loc, ok = db.CacheLocationForFileRecord(*rec)
	if !ok {
		return nil, "", false
	}

	return rec, loc, true
}

// ListFiles returns files matching filter, ordered by path for
// determinism.
func (db *DB) ListFiles(ctx context.Context, filter Filter) ([]FileRecord, error) {
	query := "SELECT id, category, path, status, commit_id, content_type, size, updated_at FROM files WHERE repo_id = ?"
	args := []any{db.repoID}

	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.CommitID != "" {
		query += " AND commit_id = ?"
		args = append(args, filter.CommitID)
	}
	if filter.PathPrefix != "" {
		query += " AND path LIKE ? ESCAPE '\\'"
		args = append(args, likePrefix(filter.PathPrefix))
	}

	query += " ORDER BY path ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "listing files")
	}
	defer rows.Close()

	return scanFileRows(rows)
}

// Siblings returns files sharing the same parent directory as ref,
// excluding ref itself.
func (db *DB) Siblings(ctx context.Context, ref FileRecord) ([]FileRecord, error) {
	dir := path.Dir(ref.Path)

	// A root-level file's parent is ".", which no stored path starts with:
	// match every path and let filterByParent keep the root-level ones.
	pattern := dir + "/%"
	if dir == "." {
		pattern = "%"
	}

	rows, err := db.sql.QueryContext(ctx, sqlSiblings, db.repoID, pattern, ref.ID)
	if err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "listing siblings of %s", ref.Path)
	}
	defer rows.Close()

	return filterByParent(scanFileRows, rows, dir)
}

// Children returns files whose parent directory is exactly ref's path.
func (db *DB) Children(ctx context.Context, ref FileRecord) ([]FileRecord, error) {
	rows, err := db.sql.QueryContext(ctx, sqlSiblings, db.repoID, ref.Path+"/%", "")
	if err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "listing children of %s", ref.Path)
	}
	defer rows.Close()

	return filterByParent(scanFileRows, rows, ref.Path)
}

// Descendants returns files whose path has ref.Path+"/" as a prefix.
func (db *DB) Descendants(ctx context.Context, ref FileRecord) ([]FileRecord, error) {
	rows, err := db.sql.QueryContext(ctx, sqlDescendants, db.repoID, likePrefix(ref.Path+"/"))
	if err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "listing descendants of %s", ref.Path)
	}
	defer rows.Close()

	return scanFileRows(rows)
}

// likePrefix escapes LIKE metacharacters in a user-supplied prefix and
// appends the wildcard.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

func filterByParent(scan func(*sql.Rows) ([]FileRecord, error), rows *sql.Rows, dir string) ([]FileRecord, error) {
	all, err := scan(rows)
	if err != nil {
		return nil, err
	}

	out := make([]FileRecord, 0, len(all))
	for _, r := range all {
		if path.Dir(r.Path) == dir {
			out = append(out, r)
		}
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRow(row rowScanner) (*FileRecord, error) {
	var r FileRecord
	var status string
	var contentType sql.NullString
	var size sql.NullInt64
	var updatedAt int64

	if err := row.Scan(&r.ID, &r.Category, &r.Path, &status, &r.CommitID, &contentType, &size, &updatedAt); err != nil {
		return nil, err
	}

	r.Status = FileStatus(status)
	r.ContentType = contentType.String
	r.Size = size.Int64
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &r, nil
}

func scanFileRows(rows *sql.Rows) ([]FileRecord, error) {
	var out []FileRecord
	for rows.Next() {
		r, err := scanFileRow(rows)
		if err != nil {
			return nil, fmt.Errorf("filedb: scanning file row: %w", err)
		}
		out = append(out, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filedb: iterating file rows: %w", err)
	}

	return out, nil
}

const (
	sqlUpsertFile = `INSERT INTO files
		(id, repo_id, category, path, status, commit_id, content_type, size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, id) DO UPDATE SET
		 category = excluded.category,
		 path = excluded.path,
		 status = excluded.status,
		 commit_id = excluded.commit_id,
		 content_type = excluded.content_type,
		 size = excluded.size,
		 updated_at = excluded.updated_at`

	sqlMarkFileDeleted = `UPDATE files SET status = 'deleted' WHERE repo_id = ? AND id = ?`

	sqlMarkPublished = `UPDATE files SET status = 'published' WHERE repo_id = ? AND id = ?`

	sqlGetFile = `SELECT id, category, path, status, commit_id, content_type, size, updated_at
		FROM files WHERE repo_id = ? AND id = ?`

	sqlGetFileByPath = `SELECT id, category, path, status, commit_id, content_type, size, updated_at
		FROM files WHERE repo_id = ? AND category = ? AND path = ? AND status != 'deleted'`

	sqlSiblings = `SELECT id, category, path, status, commit_id, content_type, size, updated_at
		FROM files WHERE repo_id = ? AND path LIKE ? ESCAPE '\' AND status != 'deleted' AND id != ?`

	sqlDescendants = `SELECT id, category, path, status, commit_id, content_type, size, updated_at
		FROM files WHERE repo_id = ? AND path LIKE ? ESCAPE '\' AND status != 'deleted'
		ORDER BY path ASC`

	sqlUpsertPage = `INSERT INTO pages (id, repo_id, version, title, content)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, id) DO UPDATE SET
		 version = excluded.version, title = excluded.title, content = excluded.content`

	sqlDeletePage = `DELETE FROM pages WHERE repo_id = ? AND id = ?`

	sqlInsertPageFTS = `INSERT INTO pages_fts (id, repo_id, title, content) VALUES (?, ?, ?, ?)`

	sqlDeletePageFTS = `DELETE FROM pages_fts WHERE repo_id = ? AND id = ?`

	sqlStalePageIDs = `SELECT p.id FROM pages p
		JOIN files f ON f.repo_id = p.repo_id AND f.id = p.id
		WHERE p.repo_id = ? AND p.version != f.commit_id`
)
