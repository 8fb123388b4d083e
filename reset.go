package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/locomote-sh/locomote/internal/syncproto"
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <category>",
		Short: "Force a fileset reset for one category",
		Long: `Requests the complete authoritative file list for a fileset category and
replaces the local file database's records for that category wholesale.

Use this when a repository's local state has drifted (e.g. after manual
cache tampering) rather than waiting for the server to push a reset record
on the next refresh. The repository is selected by the --repo flag or the
LOCOMOTE_REPO environment variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), args[0])
		},
	}

	return cmd
}

func runReset(ctx context.Context, category string) error {
	cc := mustCLIContext(ctx)

	mounted, err := mountRepository(ctx, cc.Repo, cc.Logger)
	if err != nil {
		return err
	}
	defer mounted.Close()

	cc.Statusf("Resetting %s category %q...\n", cc.Repo.Ref, category)

	f, err := mounted.Commands.EnqueueCommand("reset", category)
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	if err := f.Wait(ctx); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	result := mounted.resetResultAndClear()

	if cc.Flags.JSON {
		if err := printResetJSON(category, result); err != nil {
			return err
		}
	} else {
		printResetText(cc, category, result)
	}

	if len(result.Warnings) > 0 {
		return fmt.Errorf("reset completed with %d warnings", len(result.Warnings))
	}

	return nil
}

func printResetText(cc *CLIContext, category string, result *syncproto.RefreshResult) {
	cc.Statusf("Reset of %q complete.\n", category)

	if len(result.Warnings) > 0 {
		cc.Statusf("  %s: %d\n", colorize(os.Stderr, ansiYellow, "Warnings"), len(result.Warnings))
		for _, w := range result.Warnings {
			cc.Statusf("    - %s\n", w)
		}
	}
}

type resetJSONOutput struct {
	Category string   `json:"category"`
	Warnings []string `json:"warnings"`
}

func printResetJSON(category string, result *syncproto.RefreshResult) error {
	warnings := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, w.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(resetJSONOutput{Category: category, Warnings: warnings})
}
