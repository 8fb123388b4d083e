package filedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// CommitCursor returns the last-applied commit ID for category, or "" if
// no updates have been applied yet (a fresh repository requests a full
// reset rather than an incremental `since`).
func (db *DB) CommitCursor(ctx context.Context, category string) (string, error) {
	var commitID string

	err := db.sql.QueryRowContext(ctx, sqlGetCommitCursor, db.repoID, category).Scan(&commitID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", locoerrors.Wrap(locoerrors.ErrDB, err, "fetching commit cursor for category %s", category)
	}

	return commitID, nil
}

// SetCommitCursor advances the commit cursor for category. Called only
// after a refresh cycle's DB delta has committed successfully (spec §4.4,
// step 3: "advance commitCursor only on successful commit").
func (db *DB) SetCommitCursor(ctx context.Context, category, commitID string) error {
	if _, err := db.sql.ExecContext(ctx, sqlSetCommitCursor, db.repoID, category, commitID); err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "setting commit cursor for category %s", category)
	}

	return nil
}

const (
	sqlGetCommitCursor = `SELECT commit_id FROM commit_cursors WHERE repo_id = ? AND category = ?`

	sqlSetCommitCursor = `INSERT INTO commit_cursors (repo_id, category, commit_id)
		VALUES (?, ?, ?)
		ON CONFLICT(repo_id, category) DO UPDATE SET commit_id = excluded.commit_id`
)
