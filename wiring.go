package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/config"
	"github.com/locomote-sh/locomote/internal/filedb"
	"github.com/locomote-sh/locomote/internal/lococlient"
	"github.com/locomote-sh/locomote/internal/opqueue"
	"github.com/locomote-sh/locomote/internal/registry"
	"github.com/locomote-sh/locomote/internal/syncproto"
)

// mountedRepository bundles the fully-wired stack for one resolved
// repository: every CLI subcommand and `serve` builds one of these
// and then either drives its Commands (sync/reset), reads its DB directly
// (status), or registers it into a shared registry.Registry (serve).
type mountedRepository struct {
	Resolved *config.ResolvedRepository
	Layout   *cachelayout.Layout
	DB       *filedb.DB
	Queue    *opqueue.Queue
	Commands *opqueue.CommandQueue
	Client   *lococlient.Client
	Repo     *registry.Repository

	resultsMu   sync.Mutex
	syncResult  *syncproto.RefreshResult
	resetResult *syncproto.RefreshResult
}

// Close stops both operation queues and releases the database handle.
// serve calls it for every mounted repository on shutdown.
func (m *mountedRepository) Close() error {
	m.Commands.Stop()
	m.Queue.Stop()
	return m.DB.Close()
}

// syncResultAndClear returns the result of the most recently completed
// "sync" command and clears it, so a stale result from an earlier call
// can never leak into a later one's read.
func (m *mountedRepository) syncResultAndClear() *syncproto.RefreshResult {
	m.resultsMu.Lock()
	defer m.resultsMu.Unlock()
	r := m.syncResult
	m.syncResult = nil
	return r
}

// resetResultAndClear is syncResultAndClear's counterpart for "reset".
func (m *mountedRepository) resetResultAndClear() *syncproto.RefreshResult {
	m.resultsMu.Lock()
	defer m.resultsMu.Unlock()
	r := m.resetResult
	m.resetResult = nil
	return r
}

// registerCommands wires "sync" and "reset" onto m.Commands, matching the
// original LOCommandQueue's command-name dispatch (spec §4.3). Each
// factory's Operation runs on m.Commands' own drain goroutine and blocks
// on m.Repo.Protocol, which enqueues its actual work onto the separate
// m.Queue — two independent single-worker queues, so this never nests an
// Enqueue inside an already-running operation on the same queue.
func (m *mountedRepository) registerCommands() {
	m.Commands.Register("sync", func(args any) (opqueue.Operation, error) {
		timeout, _ := args.(time.Duration)

		return func(ctx context.Context) ([]opqueue.FollowOn, error) {
			result, err := m.Repo.Protocol.Refresh(ctx, syncproto.RefreshOpts{Deadline: timeout})

			m.resultsMu.Lock()
			m.syncResult = result
			m.resultsMu.Unlock()

			return nil, err
		}, nil
	})

	m.Commands.Register("reset", func(args any) (opqueue.Operation, error) {
		category, ok := args.(string)
		if !ok {
			return nil, fmt.Errorf("reset command expects a string category argument, got %T", args)
		}

		return func(ctx context.Context) ([]opqueue.FollowOn, error) {
			result, err := m.Repo.Protocol.ForceReset(ctx, category)

			m.resultsMu.Lock()
			m.resetResult = result
			m.resultsMu.Unlock()

			return nil, err
		}, nil
	})
}

// mountRepository builds the full on-disk/network stack for rr: cache
// layout directories, the file database, the operation queue, an HTTP
// client stamped with the CLI's build version, and a registered
// registry.Repository wired to talk to rr's content server. The queue
// is started and ready to accept operations when this returns.
func mountRepository(ctx context.Context, rr *config.ResolvedRepository, logger *slog.Logger) (*mountedRepository, error) {
	layout := &cachelayout.Layout{
		AppCacheDir:     rr.Cache.AppCacheDir,
		ContentCacheDir: rr.Cache.ContentCacheDir,
		PackagedDir:     rr.Cache.PackagedDir,
		StagingDir:      rr.Cache.StagingDir,
		Authority:       rr.Settings.AuthorityName(),
		Account:         rr.Settings.Account,
		Repo:            rr.Settings.Repo,
		Branch:          rr.Settings.Branch,
	}

	if err := layout.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("preparing cache directories: %w", err)
	}

	db, err := filedb.Open(ctx, layout.DBPath(), rr.Ref, logger)
	if err != nil {
		return nil, fmt.Errorf("opening file database: %w", err)
	}

	queue := opqueue.New(logger)
	queue.Start(ctx)

	userAgent := rr.Network.UserAgent
	if userAgent == "" {
		userAgent = "locomote-go/" + version
	}

	client := lococlient.NewClient(rr.Settings, httpClientFor(rr.Network), tokenSourceFor(), logger, userAgent)

	repo := registry.NewRepository(rr.Settings, db, layout, queue, client, client, client, rr.CachePolicy, rr.SearchResultLimit, logger)

	commands := opqueue.NewCommandQueue(logger)
	commands.Start(ctx)

	m := &mountedRepository{
		Resolved: rr,
		Layout:   layout,
		DB:       db,
		Queue:    queue,
		Commands: commands,
		Client:   client,
		Repo:     repo,
	}
	m.registerCommands()

	return m, nil
}

// httpClientFor builds an HTTP client timed out per net.ConnectTimeout,
// falling back to httpClientTimeout when unset or unparseable (validate.go
// already rejects unparseable values at config-load time; this fallback
// only matters for a zero-value NetworkConfig built outside Load, e.g. in
// tests).
func httpClientFor(net config.NetworkConfig) *http.Client {
	timeout := httpClientTimeout
	if net.ConnectTimeout != "" {
		if d, err := time.ParseDuration(net.ConnectTimeout); err == nil {
			timeout = d
		}
	}

	return &http.Client{Timeout: timeout}
}
