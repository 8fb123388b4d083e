package filedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// ResetRecord tracks an in-progress fileset reset (spec §4.4, "Reset
// reconciliation"). At most one record exists per (repo, category) —
// invariant P3, enforced by the resets table's primary key.
type ResetRecord struct {
	Category   string
	CVS        string
	InProgress bool
}

// InsertReset records a pending reset for category at the given CVS token,
// replacing any existing record for that category.
func (db *DB) InsertReset(ctx context.Context, category, cvs string) error {
	if _, err := db.sql.ExecContext(ctx, sqlInsertReset, db.repoID, category, cvs); err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "inserting reset for category %s", category)
	}

	return nil
}

// GetResetCVS returns the CVS token of the in-progress reset for category,
// if one exists.
func (db *DB) GetResetCVS(ctx context.Context, category string) (string, error) {
	var cvs string

	err := db.sql.QueryRowContext(ctx, sqlGetResetCVS, db.repoID, category).Scan(&cvs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", locoerrors.New(locoerrors.ErrNotFound, "no reset in progress for category %s", category)
	}
	if err != nil {
		return "", locoerrors.Wrap(locoerrors.ErrDB, err, "fetching reset cvs for category %s", category)
	}

	return cvs, nil
}

// GetInProgressResets returns every reset record currently marked
// in-progress, replayed by the next refresh cycle if a prior one was
// interrupted (spec §4.4: "If interrupted, the inProgress record persists,
// so the next refresh replays the reset from step (a)").
func (db *DB) GetInProgressResets(ctx context.Context) ([]ResetRecord, error) {
	rows, err := db.sql.QueryContext(ctx, sqlListInProgressResets, db.repoID)
	if err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "listing in-progress resets")
	}
	defer rows.Close()

	var out []ResetRecord
	for rows.Next() {
		var r ResetRecord
		var inProgress int
		if err := rows.Scan(&r.Category, &r.CVS, &inProgress); err != nil {
			return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "scanning reset row")
		}
		r.InProgress = inProgress != 0
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, locoerrors.Wrap(locoerrors.ErrDB, err, "iterating reset rows")
	}

	return out, nil
}

// DeleteReset removes the reset record for category, called once the
// reset-fileset operation completes successfully.
func (db *DB) DeleteReset(ctx context.Context, category string) error {
	if _, err := db.sql.ExecContext(ctx, sqlDeleteReset, db.repoID, category); err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "deleting reset for category %s", category)
	}

	return nil
}

// DeleteAllResets removes every reset record for this repository.
func (db *DB) DeleteAllResets(ctx context.Context) error {
	if _, err := db.sql.ExecContext(ctx, sqlDeleteAllResets, db.repoID); err != nil {
		return locoerrors.Wrap(locoerrors.ErrDB, err, "deleting all resets")
	}

	return nil
}

const (
	sqlInsertReset = `INSERT INTO resets (repo_id, category, cvs, in_progress)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(repo_id, category) DO UPDATE SET cvs = excluded.cvs, in_progress = 1`

	sqlGetResetCVS = `SELECT cvs FROM resets WHERE repo_id = ? AND category = ? AND in_progress = 1`

	sqlListInProgressResets = `SELECT category, cvs, in_progress FROM resets WHERE repo_id = ? AND in_progress = 1`

	sqlDeleteReset = `DELETE FROM resets WHERE repo_id = ? AND category = ?`

	sqlDeleteAllResets = `DELETE FROM resets WHERE repo_id = ?`
)
