package filedb

import "time"

// FileStatus is the lifecycle state of a files row (spec §3, §4.1).
type FileStatus string

const (
	StatusPackaged  FileStatus = "packaged"
	StatusPublished FileStatus = "published"
	StatusDeleted   FileStatus = "deleted"
)

// FileRecord is one row of the files table.
type FileRecord struct {
	ID          string
	Category    string
	Path        string
	Status      FileStatus
	CommitID    string
	ContentType string
	Size        int64
	UpdatedAt   time.Time
}

// PageRow is one row of the pages related table, the only related table
// Locomote ships out of the box (it backs full-text search). Version must
// equal the owning FileRecord's CommitID for the row to survive
// PruneRelated (invariant P1).
type PageRow struct {
	ID      string
	Version string
	Title   string
	Content string
}

// Delta is the unit of work MergeUpdates applies in one transaction: rows
// to upsert into files, file IDs to mark deleted, and pages rows carried
// inline by the same manifest.
type Delta struct {
	Upserts []FileRecord
	Deletes []string // file IDs
	Pages   []PageRow
}

// Filter selects files for ListFiles. Empty fields are unconstrained.
// Category, Status, and CommitID are equality filters; PathPrefix is a
// prefix filter over the canonical forward-slash path grammar (spec §4.6).
type Filter struct {
	Category   string
	Status     FileStatus
	PathPrefix string
	CommitID   string
	Limit      int
}

// SearchResult pairs a file record with its page title and FTS5 rank. Rank
// is ascending (FTS5's bm25() convention — smaller is a better match);
// ties are broken by File.Path ascending for determinism (Open Question
// (a), resolved in DESIGN.md).
type SearchResult struct {
	File  FileRecord
	Title string
	Rank  float64
}
