package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/locomote-sh/locomote/internal/config"
)

// Repository state constants for status display.
const (
	repoStateReady  = "ready"
	repoStatePaused = "paused"
)

func newStatusCmd() *cobra.Command {
	var flagIncludePaused bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every configured repository's commit cursor and cache state",
		Long: `Display the status of all repositories in the config file: mount path,
last applied commit, in-progress fileset resets, and paused state.

Reads the config file and each repository's local file database — does
not contact any content server.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), flagIncludePaused)
		},
	}

	cmd.Flags().BoolVar(&flagIncludePaused, "all", false, "include paused repositories")

	return cmd
}

// repoStatus is one repository's status row.
type repoStatus struct {
	Ref            string   `json:"ref"`
	Alias          string   `json:"alias,omitempty"`
	State          string   `json:"state"`
	Commit         string   `json:"commit"`
	PendingResets  []string `json:"pending_resets,omitempty"`
	ContentCacheDir string  `json:"content_cache_dir"`
}

func runStatus(ctx context.Context, includePaused bool) error {
	cc := cliContextFrom(ctx)

	logger := buildLogger(nil)
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	if cc != nil {
		cli.ConfigPath = cc.Flags.ConfigPath
	}

	env := config.ReadEnvOverrides()
	cfgPath := config.ResolveConfigPath(env, cli, logger)

	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(cfg.Repositories) == 0 {
		fmt.Println("No repositories configured. Run 'locomote add <reference>' to add one.")
		return nil
	}

	resolved, err := config.ResolveAllRepositories(cfg, true, logger)
	if err != nil {
		return fmt.Errorf("resolving repositories: %w", err)
	}

	rows := make([]repoStatus, 0, len(resolved))
	for _, rr := range resolved {
		if rr.Paused && !includePaused {
			continue
		}

		rows = append(rows, buildRepoStatus(ctx, rr, logger))
	}

	if flagJSON {
		return printStatusJSON(rows)
	}

	printStatusText(rows)

	return nil
}

// buildRepoStatus opens rr's file database just long enough to read its
// commit cursor and pending resets. Any error opening the database is
// folded into the row rather than aborting the whole status report, so
// one broken repository doesn't hide the rest.
func buildRepoStatus(ctx context.Context, rr *config.ResolvedRepository, logger *slog.Logger) repoStatus {
	row := repoStatus{
		Ref:             rr.Ref,
		Alias:           rr.Alias,
		ContentCacheDir: rr.Cache.ContentCacheDir,
	}

	if rr.Paused {
		row.State = repoStatePaused
	} else {
		row.State = repoStateReady
	}

	mounted, err := mountRepository(ctx, rr, logger)
	if err != nil {
		row.Commit = fmt.Sprintf("error: %s", err)
		return row
	}
	defer mounted.Close()

	commit, err := mounted.DB.CommitCursor(ctx, "")
	if err == nil {
		row.Commit = commit
	}

	resets, err := mounted.DB.GetInProgressResets(ctx)
	if err == nil {
		for _, r := range resets {
			row.PendingResets = append(row.PendingResets, r.Category)
		}
	}

	return row
}

func printStatusJSON(rows []repoStatus) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(rows []repoStatus) {
	headers := []string{"REPOSITORY", "STATE", "COMMIT", "PENDING RESETS"}
	table := make([][]string, 0, len(rows))

	for _, row := range rows {
		label := row.Ref
		if row.Alias != "" {
			label = fmt.Sprintf("%s (%s)", row.Alias, row.Ref)
		}

		commit := row.Commit
		if commit == "" {
			commit = "(none)"
		}

		resets := "-"
		if len(row.PendingResets) > 0 {
			resets = fmt.Sprintf("%v", row.PendingResets)
		}

		table = append(table, []string{label, colorizeState(row.State), commit, resets})
	}

	printTable(os.Stdout, headers, table)
}

// colorizeState highlights a status row's state when stdout is a terminal:
// green for ready, yellow for paused.
func colorizeState(state string) string {
	switch state {
	case repoStateReady:
		return colorize(os.Stdout, ansiGreen, state)
	case repoStatePaused:
		return colorize(os.Stdout, ansiYellow, state)
	default:
		return state
	}
}
