package syncproto

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/filedb"
	"github.com/locomote-sh/locomote/internal/locosettings"
	"github.com/locomote-sh/locomote/internal/opqueue"
)

type fakeFetcher struct {
	manifest *UpdatesManifest
	err      error
}

func (f *fakeFetcher) FetchUpdates(ctx context.Context, since string) (*UpdatesManifest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.manifest, nil
}

type fakeDownloader struct {
	archives map[string][]byte
}

func (f *fakeDownloader) DownloadFileset(ctx context.Context, url string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.archives[url])), nil
}

type fakeResetFetcher struct {
	manifest *ResetManifest
}

func (f *fakeResetFetcher) FetchReset(ctx context.Context, category, cvs string) (*ResetManifest, error) {
	return f.manifest, nil
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func testEnv(t *testing.T) (*filedb.DB, *cachelayout.Layout, *opqueue.Queue, *locosettings.Settings) {
	t.Helper()

	root := t.TempDir()
	db, err := filedb.Open(context.Background(), filepath.Join(root, "files.db"), "acme/site", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	layout := &cachelayout.Layout{
		AppCacheDir:     filepath.Join(root, "app"),
		ContentCacheDir: filepath.Join(root, "content"),
		PackagedDir:     filepath.Join(root, "packaged"),
		StagingDir:      filepath.Join(root, "staging"),
		Authority:       "locomote.sh",
		Account:         "acme",
		Repo:            "site",
		Branch:          "master",
	}
	require.NoError(t, layout.EnsureDirs())

	db.SetCacheLayout(layout, func(category string) cachelayout.CachePolicy {
		return cachelayout.CacheApp
	})

	settings, err := locosettings.ParseRef("acme/site")
	require.NoError(t, err)

	return db, layout, opqueue.New(slog.Default()), settings
}

func TestProtocol_Refresh_AppliesUpdatesAndDownloads(t *testing.T) {
	db, layout, queue, settings := testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	zipBytes := buildZip(t, map[string]string{"a.txt": "hello"})

	fetcher := &fakeFetcher{manifest: &UpdatesManifest{
		Commit: "c1",
		DB: DBDelta{
			Inserts: []FileUpdate{
				{ID: "f1", Category: "docs", Path: "a.txt", Status: "published", CommitID: "c1", UpdatedAt: time.Now().Unix()},
			},
		},
		Filesets: map[string]FilesetInfo{
			"docs": {CVS: "cvs1", URL: "http://example/docs.zip", Count: 1},
		},
	}}
	downloader := &fakeDownloader{archives: map[string][]byte{"http://example/docs.zip": zipBytes}}

	p := NewProtocol("acme/site", db, queue, layout, settings, fetcher, downloader, &fakeResetFetcher{}, func(string) cachelayout.CachePolicy {
		return cachelayout.CacheApp
	}, nil)

	result, err := p.Refresh(ctx, RefreshOpts{})
	require.NoError(t, err)
	assert.Equal(t, "c1", result.Commit)

	// No separate wait for the download-fileset follow-on: Refresh's future
	// covers the whole runtime tree, so by the time Refresh returns the
	// download has already completed.
	rec, err := db.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, filedb.StatusPublished, rec.Status)

	_, destPath, ok := db.CacheLocationForFileRecord(*rec)
	require.True(t, ok)
	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestProtocol_Refresh_DedupsConcurrentCalls(t *testing.T) {
	db, layout, queue, settings := testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{manifest: &UpdatesManifest{Commit: "c1"}}
	downloader := &fakeDownloader{archives: map[string][]byte{}}

	p := NewProtocol("acme/site", db, queue, layout, settings, fetcher, downloader, &fakeResetFetcher{}, func(string) cachelayout.CachePolicy {
		return cachelayout.CacheNone
	}, nil)

	// Don't start the queue yet, so both calls observe "pending".
	f1 := queueRefreshFuture(t, p)
	f2 := queueRefreshFuture(t, p)
	assert.Same(t, f1, f2)

	queue.Start(ctx)
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, f1.Wait(waitCtx))
}

func queueRefreshFuture(t *testing.T, p *Protocol) *opqueue.Future {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	h, already := p.active[p.repoKey]
	if !already {
		h = &refreshHandle{result: &RefreshResult{}}
		h.future = p.queue.Enqueue(p.refreshOperation(h), "")
		p.active[p.repoKey] = h
	}

	return h.future
}

func TestProtocol_ResetFileset_ReplacesCategoryWholesale(t *testing.T) {
	db, layout, queue, settings := testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	require.NoError(t, db.MergeUpdates(ctx, filedb.Delta{
		Upserts: []filedb.FileRecord{
			{ID: "stale", Category: "docs", Path: "stale.txt", Status: filedb.StatusPublished, CommitID: "c0", UpdatedAt: time.Now()},
		},
	}))
	require.NoError(t, db.InsertReset(ctx, "docs", "cvs-1"))

	resetFetcher := &fakeResetFetcher{manifest: &ResetManifest{
		Category: "docs",
		CVS:      "cvs-1",
		Files: []FileUpdate{
			{ID: "fresh", Category: "docs", Path: "fresh.txt", Status: "published", CommitID: "c1", UpdatedAt: time.Now().Unix()},
		},
	}}

	// The reset chains a download-fileset follow-on for the category.
	downloader := &fakeDownloader{archives: map[string][]byte{
		settings.URLForFileset("docs"): buildZip(t, map[string]string{"fresh.txt": "fresh"}),
	}}

	p := NewProtocol("acme/site", db, queue, layout, settings, &fakeFetcher{}, downloader, resetFetcher, func(string) cachelayout.CachePolicy {
		return cachelayout.CacheApp
	}, nil)

	future := p.queue.Enqueue(p.resetFilesetOperation(&refreshHandle{result: &RefreshResult{}}, "docs"), "")
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, future.Wait(waitCtx))

	_, err := db.GetFile(ctx, "stale")
	require.NoError(t, err)
	staleRec, _ := db.GetFile(ctx, "stale")
	assert.Equal(t, filedb.StatusDeleted, staleRec.Status)

	freshRec, err := db.GetFile(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, filedb.StatusPublished, freshRec.Status)

	_, err = db.GetResetCVS(ctx, "docs")
	assert.Error(t, err)
}

func TestProtocol_ForceReset_InsertsRecordWhenNoneExists(t *testing.T) {
	db, layout, queue, settings := testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	require.NoError(t, db.MergeUpdates(ctx, filedb.Delta{
		Upserts: []filedb.FileRecord{
			{ID: "stale", Category: "docs", Path: "stale.txt", Status: filedb.StatusPublished, CommitID: "c0", UpdatedAt: time.Now()},
		},
	}))

	resetFetcher := &fakeResetFetcher{manifest: &ResetManifest{
		Category: "docs",
		Files: []FileUpdate{
			{ID: "fresh", Category: "docs", Path: "fresh.txt", Status: "published", CommitID: "c1", UpdatedAt: time.Now().Unix()},
		},
	}}

	// The reset chains a download-fileset follow-on for the category.
	downloader := &fakeDownloader{archives: map[string][]byte{
		settings.URLForFileset("docs"): buildZip(t, map[string]string{"fresh.txt": "fresh"}),
	}}

	p := NewProtocol("acme/site", db, queue, layout, settings, &fakeFetcher{}, downloader, resetFetcher, func(string) cachelayout.CachePolicy {
		return cachelayout.CacheApp
	}, nil)

	result, err := p.ForceReset(ctx, "docs")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	staleRec, err := db.GetFile(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, filedb.StatusDeleted, staleRec.Status)

	_, err = db.GetResetCVS(ctx, "docs")
	assert.Error(t, err)
}
