// Package syncproto implements the sync protocol's refresh cycle (spec
// §4.4): fetching an updates manifest, applying it to the file database,
// downloading changed filesets, and reconciling server-requested resets.
// It depends only on the Fetcher/FilesetDownloader/ResetFetcher interfaces
// below — internal/lococlient provides the concrete HTTP implementation.
package syncproto

// UpdatesManifest is the JSON body returned by the updates endpoint (spec
// §4.4 step 2; wire format pinned here, resolving Open Question (b)).
type UpdatesManifest struct {
	Commit   string                 `json:"commit"`
	DB       DBDelta                `json:"db"`
	Filesets map[string]FilesetInfo `json:"filesets"`
	Resets   []ResetRequest         `json:"resets"`
}

// DBDelta carries the rows to apply to the files table and its related
// tables inline with an updates manifest.
type DBDelta struct {
	Inserts []FileUpdate `json:"inserts"`
	Updates []FileUpdate `json:"updates"`
	Deletes []string     `json:"deletes"`
}

// FileUpdate is one files-table row as carried over the wire, plus an
// optional inline pages row for searchable content.
type FileUpdate struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Path        string `json:"path"`
	Status      string `json:"status"`
	CommitID    string `json:"commit"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	UpdatedAt   int64  `json:"updatedAt"`
	Page        *Page  `json:"page,omitempty"`
}

// Page is the inline related-table payload for full-text search.
type Page struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// FilesetInfo describes one changed, cachable category.
type FilesetInfo struct {
	CVS   string `json:"cvs"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// ResetRequest is one server-requested fileset reset.
type ResetRequest struct {
	Category string `json:"category"`
	CVS      string `json:"cvs"`
}

// ResetManifest is the JSON body returned by the reset endpoint: the
// complete, authoritative list of files in one category (spec §4.4,
// "Reset-fileset operation").
type ResetManifest struct {
	Category string       `json:"category"`
	CVS      string       `json:"cvs"`
	Files    []FileUpdate `json:"files"`
}
