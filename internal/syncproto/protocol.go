package syncproto

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/filedb"
	"github.com/locomote-sh/locomote/internal/locoerrors"
	"github.com/locomote-sh/locomote/internal/locosettings"
	"github.com/locomote-sh/locomote/internal/opqueue"
)

// repoCursorCategory is the pseudo-category filedb's per-category commit
// cursor is stored under for the repository-wide "since" token used by the
// updates endpoint (as opposed to per-fileset download bookkeeping).
const repoCursorCategory = ""

// Fetcher retrieves the updates manifest for a repository.
type Fetcher interface {
	FetchUpdates(ctx context.Context, since string) (*UpdatesManifest, error)
}

// FilesetDownloader retrieves a fileset's archive body.
type FilesetDownloader interface {
	DownloadFileset(ctx context.Context, url string) (io.ReadCloser, error)
}

// ResetFetcher retrieves the authoritative file list for a fileset reset.
type ResetFetcher interface {
	FetchReset(ctx context.Context, category, cvs string) (*ResetManifest, error)
}

// RefreshOpts configures one refresh cycle.
type RefreshOpts struct {
	// Deadline, if non-zero, bounds how long Refresh waits for the cycle
	// to finish before returning with Incomplete=true. The queue keeps
	// running the cycle in the background regardless (spec §4.4,
	// "Timeouts and cancellation").
	Deadline time.Duration
}

// RefreshResult is the outcome of one refresh cycle.
type RefreshResult struct {
	Commit     string
	Warnings   []error
	Incomplete bool
}

type refreshHandle struct {
	future *opqueue.Future
	result *RefreshResult
}

// Protocol runs the sync protocol's refresh cycle against one repository's
// File DB, cache layout, and operation queue.
type Protocol struct {
	repoKey  string
	db       *filedb.DB
	queue    *opqueue.Queue
	layout   *cachelayout.Layout
	settings *locosettings.Settings

	fetcher      Fetcher
	downloader   FilesetDownloader
	resetFetcher ResetFetcher
	policyFor    filedb.CachePolicyFunc

	logger *slog.Logger
	sleep  sleepFunc

	mu     sync.Mutex
	active map[string]*refreshHandle
}

// NewProtocol builds a Protocol for one repository. repoKey identifies the
// repository for the refresh-guard namespace (spec §4.4 step 1).
func NewProtocol(
	repoKey string,
	db *filedb.DB,
	queue *opqueue.Queue,
	layout *cachelayout.Layout,
	settings *locosettings.Settings,
	fetcher Fetcher,
	downloader FilesetDownloader,
	resetFetcher ResetFetcher,
	policyFor filedb.CachePolicyFunc,
	logger *slog.Logger,
) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}

	return &Protocol{
		repoKey:      repoKey,
		db:           db,
		queue:        queue,
		layout:       layout,
		settings:     settings,
		fetcher:      fetcher,
		downloader:   downloader,
		resetFetcher: resetFetcher,
		policyFor:    policyFor,
		logger:       logger,
		active:       make(map[string]*refreshHandle),
	}
}

// Refresh runs one refresh cycle, or joins an already pending/executing one
// for this repository (spec §4.4 step 1: "Guard").
func (p *Protocol) Refresh(ctx context.Context, opts RefreshOpts) (*RefreshResult, error) {
	p.mu.Lock()
	h, already := p.active[p.repoKey]
	if !already {
		h = &refreshHandle{result: &RefreshResult{}}
		h.future = p.queue.Enqueue(p.refreshOperation(h), "")
		p.active[p.repoKey] = h
	}
	p.mu.Unlock()

	waitCtx := ctx
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	err := h.future.Wait(waitCtx)

	p.mu.Lock()
	res := *h.result
	p.mu.Unlock()

	if errors.Is(err, context.DeadlineExceeded) {
		res.Incomplete = true
		return &res, nil
	}
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ForceReset runs the reset-fileset operation for category outside the
// normal server-pushed reset flow (the `locomote reset` command). If no
// reset record exists yet for category, one is inserted with an empty
// CVS, which the server's FetchReset endpoint treats as a request for the
// complete authoritative list (spec §4.4's reset-fileset operation).
func (p *Protocol) ForceReset(ctx context.Context, category string) (*RefreshResult, error) {
	guardKey := "reset:" + category

	p.mu.Lock()
	h, already := p.active[guardKey]
	if !already {
		h = &refreshHandle{result: &RefreshResult{}}
		p.active[guardKey] = h
	}
	p.mu.Unlock()

	if !already {
		if _, err := p.db.GetResetCVS(ctx, category); err != nil {
			if insertErr := p.db.InsertReset(ctx, category, ""); insertErr != nil {
				p.mu.Lock()
				delete(p.active, guardKey)
				p.mu.Unlock()

				return nil, insertErr
			}
		}

		h.future = p.queue.Enqueue(p.resetFilesetOperation(h, category), "")

		go func() {
			<-h.future.Done()
			p.mu.Lock()
			delete(p.active, guardKey)
			p.mu.Unlock()
		}()
	}

	if err := h.future.Wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	res := *h.result
	p.mu.Unlock()

	return &res, nil
}

func (p *Protocol) appendWarning(h *refreshHandle, err error) {
	p.mu.Lock()
	h.result.Warnings = append(h.result.Warnings, err)
	p.mu.Unlock()
}

// refreshOperation builds the top-level refresh Operation (spec §4.4 steps
// 2-6).
func (p *Protocol) refreshOperation(h *refreshHandle) opqueue.Operation {
	return func(ctx context.Context) ([]opqueue.FollowOn, error) {
		defer func() {
			p.mu.Lock()
			delete(p.active, p.repoKey)
			p.mu.Unlock()
		}()

		since, err := p.db.CommitCursor(ctx, repoCursorCategory)
		if err != nil {
			return nil, err
		}

		var manifest *UpdatesManifest
		err = withRetry(ctx, p.sleep, func() error {
			m, ferr := p.fetcher.FetchUpdates(ctx, since)
			if ferr != nil {
				return ferr
			}
			manifest = m
			return nil
		})
		if err != nil {
			return nil, locoerrors.Wrap(locoerrors.ErrTransport, err, "fetching updates since %q", since)
		}

		delta := manifestToDelta(manifest.DB)
		if err := p.db.MergeUpdates(ctx, delta); err != nil {
			return nil, err
		}

		if err := p.db.SetCommitCursor(ctx, repoCursorCategory, manifest.Commit); err != nil {
			return nil, err
		}

		if err := p.db.PruneRelated(ctx); err != nil {
			return nil, err
		}

		p.mu.Lock()
		h.result.Commit = manifest.Commit
		p.mu.Unlock()

		var followOns []opqueue.FollowOn

		for category, info := range manifest.Filesets {
			if p.policyFor(category) == cachelayout.CacheNone {
				continue
			}

			url := info.URL
			followOns = append(followOns, opqueue.FollowOn{
				OpID: "download-fileset:" + p.repoKey + ":" + category,
				Op:   p.downloadFilesetOperation(h, category, url),
			})
		}

		for _, r := range manifest.Resets {
			if err := p.db.InsertReset(ctx, r.Category, r.CVS); err != nil {
				return nil, err
			}

			followOns = append(followOns, opqueue.FollowOn{
				OpID: "reset-fileset:" + p.repoKey + ":" + r.Category,
				Op:   p.resetFilesetOperation(h, r.Category),
			})
		}

		return followOns, nil
	}
}

// downloadFilesetOperation streams a fileset archive into staging and
// promotes each entry into its tier location (spec §4.4,
// "Download-fileset operation").
func (p *Protocol) downloadFilesetOperation(h *refreshHandle, category, url string) opqueue.Operation {
	return func(ctx context.Context) ([]opqueue.FollowOn, error) {
		stage, err := p.layout.Stage("dl-" + category)
		if err != nil {
			return nil, locoerrors.Wrap(locoerrors.ErrCacheIO, err, "staging download for category %s", category)
		}

		archivePath, err := p.fetchArchive(ctx, stage, url)
		if err != nil {
			stage.Discard() //nolint:errcheck // best effort cleanup after a fatal failure
			return nil, err
		}

		if err := p.extractArchive(ctx, stage, archivePath, category, h); err != nil {
			stage.Discard() //nolint:errcheck // best effort cleanup after a fatal failure
			return nil, err
		}

		if err := stage.Discard(); err != nil {
			p.logger.Warn("syncproto: discarding staging dir", "category", category, "error", err)
		}

		return nil, nil
	}
}

func (p *Protocol) fetchArchive(ctx context.Context, stage *cachelayout.StagingDir, url string) (string, error) {
	archivePath, err := stage.Path("_archive.zip")
	if err != nil {
		return "", locoerrors.Wrap(locoerrors.ErrCacheIO, err, "allocating archive staging path")
	}

	var body io.ReadCloser
	err = withRetry(ctx, p.sleep, func() error {
		b, derr := p.downloader.DownloadFileset(ctx, url)
		if derr != nil {
			return derr
		}
		body = b
		return nil
	})
	if err != nil {
		return "", locoerrors.Wrap(locoerrors.ErrTransport, err, "downloading fileset %s", url)
	}
	defer body.Close()

	f, err := os.Create(archivePath)
	if err != nil {
		return "", locoerrors.Wrap(locoerrors.ErrCacheIO, err, "creating archive staging file")
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return "", locoerrors.Wrap(locoerrors.ErrTransport, err, "streaming fileset archive %s", url)
	}

	return archivePath, nil
}

// extractArchive promotes each archive entry into its tier location and
// marks the corresponding file downloaded. A per-entry failure becomes a
// warning and does not abort the remaining entries; a failure reading the
// archive itself is fatal for the whole operation.
func (p *Protocol) extractArchive(ctx context.Context, stage *cachelayout.StagingDir, archivePath, category string, h *refreshHandle) error {
	info, err := os.Stat(archivePath)
	if err != nil {
		return locoerrors.Wrap(locoerrors.ErrCacheIO, err, "statting archive %s", archivePath)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return locoerrors.Wrap(locoerrors.ErrCacheIO, err, "opening archive %s", archivePath)
	}
	defer f.Close()

	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		return locoerrors.Wrap(locoerrors.ErrProtocol, err, "reading fileset archive %s", archivePath)
	}

	for _, entry := range r.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		if err := p.extractEntry(ctx, stage, entry, category); err != nil {
			p.appendWarning(h, fmt.Errorf("syncproto: fileset %s entry %s: %w", category, entry.Name, err))
		}
	}

	return nil
}

func (p *Protocol) extractEntry(ctx context.Context, stage *cachelayout.StagingDir, entry *zip.File, category string) error {
	rec, err := p.db.GetFileByPath(ctx, category, entry.Name)
	if err != nil {
		return err
	}

	_, destPath, ok := p.db.CacheLocationForFileRecord(*rec)
	if !ok {
		return nil
	}

	stagedPath, err := stage.Path(entry.Name)
	if err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(stagedPath)
	if err != nil {
		return fmt.Errorf("creating staged file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("writing staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing staged file: %w", err)
	}

	if err := stage.Promote(stagedPath, destPath); err != nil {
		return err
	}

	return p.db.MarkDownloaded(ctx, rec.ID)
}

// resetFilesetOperation runs the reset-fileset operation (spec §4.4,
// "Reset-fileset operation"): replaces a category's file list wholesale
// with the server's authoritative set, then re-downloads it.
func (p *Protocol) resetFilesetOperation(h *refreshHandle, category string) opqueue.Operation {
	return func(ctx context.Context) ([]opqueue.FollowOn, error) {
		cvs, err := p.db.GetResetCVS(ctx, category)
		if err != nil {
			return nil, err
		}

		var manifest *ResetManifest
		err = withRetry(ctx, p.sleep, func() error {
			m, ferr := p.resetFetcher.FetchReset(ctx, category, cvs)
			if ferr != nil {
				return ferr
			}
			manifest = m
			return nil
		})
		if err != nil {
			return nil, locoerrors.Wrap(locoerrors.ErrTransport, err, "fetching reset for category %s", category)
		}

		existing, err := p.db.ListFiles(ctx, filedb.Filter{Category: category})
		if err != nil {
			return nil, err
		}

		present := make(map[string]bool, len(manifest.Files))
		for _, f := range manifest.Files {
			present[f.ID] = true
		}

		var deletes []string
		for _, rec := range existing {
			if !present[rec.ID] {
				deletes = append(deletes, rec.ID)
			}
		}

		delta := manifestToDelta(DBDelta{Inserts: manifest.Files, Deletes: deletes})
		if err := p.db.MergeUpdates(ctx, delta); err != nil {
			return nil, err
		}

		if err := p.db.DeleteReset(ctx, category); err != nil {
			return nil, err
		}

		return []opqueue.FollowOn{{
			OpID: "download-fileset:" + p.repoKey + ":" + category,
			Op:   p.downloadFilesetOperation(h, category, p.settings.URLForFileset(category)),
		}}, nil
	}
}

func manifestToDelta(d DBDelta) filedb.Delta {
	var out filedb.Delta

	apply := func(u FileUpdate) {
		out.Upserts = append(out.Upserts, u.toRecord())
		if u.Page != nil {
			out.Pages = append(out.Pages, filedb.PageRow{
				ID: u.ID, Version: u.CommitID, Title: u.Page.Title, Content: u.Page.Content,
			})
		}
	}

	for _, u := range d.Inserts {
		apply(u)
	}
	for _, u := range d.Updates {
		apply(u)
	}

	out.Deletes = append(out.Deletes, d.Deletes...)

	return out
}

func (u FileUpdate) toRecord() filedb.FileRecord {
	return filedb.FileRecord{
		ID:          u.ID,
		Category:    u.Category,
		Path:        u.Path,
		Status:      filedb.FileStatus(u.Status),
		CommitID:    u.CommitID,
		ContentType: u.ContentType,
		Size:        u.Size,
		UpdatedAt:   time.Unix(u.UpdatedAt, 0).UTC(),
	}
}
