package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spf13/cobra"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/config"
	"github.com/locomote-sh/locomote/internal/dispatch"
	"github.com/locomote-sh/locomote/internal/registry"
	"github.com/locomote-sh/locomote/internal/syncproto"
)

// serveShutdownTimeout bounds how long serve waits for in-flight HTTP
// requests to finish after a shutdown signal before forcing the listener
// closed.
const serveShutdownTimeout = 10 * time.Second

// stagingStaleAfter bounds how long a staging entry can sit untouched
// before watchStaging treats it as orphaned by a crashed operation.
const stagingStaleAfter = 1 * time.Hour

// maxConcurrentMounts bounds how many repositories are opened/migrated
// at once on startup — each one runs goose migrations against its own
// SQLite file, which is cheap but still I/O-bound, so an unbounded fan-out
// over a large config wouldn't help.
const maxConcurrentMounts = 4

func newServeCmd() *cobra.Command {
	var flagListen, flagPIDFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every configured repository's content API over HTTP",
		Long: `Mounts every non-paused repository in the config file behind a single
HTTP server, dispatching each request to its repository by content URL
(spec §4.7). Runs until interrupted.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flagListen, flagPIDFile)
		},
	}

	cmd.Flags().StringVar(&flagListen, "listen", ":8080", "address to listen on")
	cmd.Flags().StringVar(&flagPIDFile, "pid-file", "", "write the daemon's PID to this path")

	return cmd
}

func runServe(ctx context.Context, listen, pidFile string) error {
	logger := buildLogger(nil)
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	env := config.ReadEnvOverrides()
	cfgPath := config.ResolveConfigPath(env, cli, logger)

	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolved, err := config.ResolveAllRepositories(cfg, false, logger)
	if err != nil {
		return fmt.Errorf("resolving repositories: %w", err)
	}

	if len(resolved) == 0 {
		return fmt.Errorf("no repositories configured — run 'locomote add <reference>' first")
	}

	if pidFile != "" {
		cleanup, err := writePIDFile(pidFile)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	mounted, err := mountAllRepositories(ctx, resolved, logger)
	if err != nil {
		return err
	}

	defer func() {
		for _, m := range mounted {
			m.Close()
		}
	}()

	reg := registry.New()
	stopWatchers := make([]func(), 0, len(mounted))

	for _, m := range mounted {
		reg.AddRepository(m.Resolved.Settings.AuthorityName(), m.Repo)
		logger.Info("mounted repository", "ref", m.Resolved.Ref, "authority", m.Resolved.Settings.AuthorityName(), "mount", m.Repo.MountPath)

		stop, err := cachelayout.WatchStaging(ctx, m.Layout.StagingDir, stagingStaleAfter, logger)
		if err != nil {
			logger.Warn("could not start staging watcher", "ref", m.Resolved.Ref, "error", err)
			continue
		}

		stopWatchers = append(stopWatchers, stop)
	}

	defer func() {
		for _, stop := range stopWatchers {
			stop()
		}
	}()

	server := &http.Server{
		Addr:    listen,
		Handler: newContentHandler(reg),
	}

	shutdownCtx := shutdownContext(ctx, logger)
	go watchReloadSignal(shutdownCtx, mounted, logger)

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("serve: listening", "addr", listen)
		serveErrCh <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	case <-shutdownCtx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	return nil
}

// mountAllRepositories mounts every resolved repository concurrently,
// bounded by maxConcurrentMounts. If any mount fails, every repository
// mounted so far is closed before returning the error — a serve process
// either starts with its whole configured fleet or not at all.
func mountAllRepositories(ctx context.Context, resolved []*config.ResolvedRepository, logger *slog.Logger) ([]*mountedRepository, error) {
	results := make([]*mountedRepository, len(resolved))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentMounts)

	for i, rr := range resolved {
		i, rr := i, rr

		g.Go(func() error {
			m, err := mountRepository(gctx, rr, logger)
			if err != nil {
				return fmt.Errorf("mounting repository %q: %w", rr.Ref, err)
			}

			results[i] = m

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, m := range results {
			if m != nil {
				m.Close()
			}
		}

		return nil, err
	}

	return results, nil
}

// watchReloadSignal refreshes every mounted repository on SIGHUP, so an
// operator can force an immediate resync of a running daemon (via
// `locomote reload`, which sends this signal) instead of waiting for the
// next scheduled sync.
func watchReloadSignal(ctx context.Context, mounted []*mountedRepository, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			logger.Info("serve: SIGHUP received, refreshing all repositories")

			for _, m := range mounted {
				if _, err := m.Repo.Protocol.Refresh(ctx, syncproto.RefreshOpts{}); err != nil {
					logger.Error("serve: refresh failed", "ref", m.Resolved.Ref, "error", err)
				}
			}
		}
	}
}

// newContentHandler wraps reg.Dispatch as an http.Handler: the request
// path and authority's host are assembled into a "content://" URL per
// spec §4.7, the query string is passed through untouched, and the
// response is written via an HTTPResponseWriter.
func newContentHandler(reg *registry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authority := r.Host
		if authority == "" {
			authority = "locomote.sh"
		}

		contentURL := "content://" + authority + r.URL.Path

		resp := dispatch.NewHTTPResponseWriter(w)
		reg.Dispatch(r.Context(), contentURL, r.URL.Query(), resp)
	})
}
