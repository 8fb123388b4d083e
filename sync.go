package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/locomote-sh/locomote/internal/syncproto"
)

func newSyncCmd() *cobra.Command {
	var flagTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one refresh cycle against a repository's content server",
		Long: `Fetches the updates feed since the repository's last commit cursor, applies
file database changes, and downloads any filesets the server flagged for
bulk refresh.

The repository is selected by the --repo flag or the LOCOMOTE_REPO
environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), flagTimeout)
		},
	}

	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "bound how long to wait for the refresh cycle (0 = wait indefinitely)")

	return cmd
}

func runSync(ctx context.Context, timeout time.Duration) error {
	cc := mustCLIContext(ctx)

	mounted, err := mountRepository(ctx, cc.Repo, cc.Logger)
	if err != nil {
		return err
	}
	defer mounted.Close()

	cc.Statusf("Refreshing %s...\n", cc.Repo.Ref)

	f, err := mounted.Commands.EnqueueCommand("sync", timeout)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if err := f.Wait(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	result := mounted.syncResultAndClear()

	if cc.Flags.JSON {
		if err := printSyncJSON(result); err != nil {
			return err
		}
	} else {
		printSyncText(cc, result)
	}

	if len(result.Warnings) > 0 {
		return fmt.Errorf("sync completed with %d warnings", len(result.Warnings))
	}

	return nil
}

func printSyncText(cc *CLIContext, result *syncproto.RefreshResult) {
	if result.Incomplete {
		cc.Statusf("Sync timed out before the refresh cycle finished.\n")
		return
	}

	if result.Commit == "" && len(result.Warnings) == 0 {
		cc.Statusf("Already in sync.\n")
		return
	}

	cc.Statusf("Sync complete (commit %s)\n", result.Commit)

	if len(result.Warnings) > 0 {
		cc.Statusf("  %s: %d\n", colorize(os.Stderr, ansiYellow, "Warnings"), len(result.Warnings))
		for _, w := range result.Warnings {
			cc.Statusf("    - %s\n", w)
		}
	}
}

// syncJSONOutput is the JSON output schema for the sync command.
type syncJSONOutput struct {
	Commit     string   `json:"commit"`
	Incomplete bool     `json:"incomplete"`
	Warnings   []string `json:"warnings"`
}

func printSyncJSON(result *syncproto.RefreshResult) error {
	warnings := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, w.Error())
	}

	out := syncJSONOutput{
		Commit:     result.Commit,
		Incomplete: result.Incomplete,
		Warnings:   warnings,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
