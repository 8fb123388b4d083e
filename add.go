package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/locomote-sh/locomote/internal/config"
	"github.com/locomote-sh/locomote/internal/locosettings"
)

func newAddCmd() *cobra.Command {
	var flagAlias string

	cmd := &cobra.Command{
		Use:   "add <reference>",
		Short: "Register a new repository in the config file",
		Long: `Parses a repository reference string (e.g. "acme/site" or
"https:user:pass@cms.example.com/acme/site/staging") and appends a
[repositories."..."] section for it to the config file.

Run 'locomote sync' or 'locomote status' afterwards to use it.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(args[0], flagAlias)
		},
	}

	cmd.Flags().StringVar(&flagAlias, "alias", "", "short name to address this repository by")

	return cmd
}

func runAdd(ref, alias string) error {
	if _, err := locosettings.ParseRef(ref); err != nil {
		return fmt.Errorf("invalid repository reference: %w", err)
	}

	logger := buildLogger(nil)
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	env := config.ReadEnvOverrides()
	cfgPath := config.ResolveConfigPath(env, cli, logger)

	if err := config.AppendRepositorySection(cfgPath, ref, alias); err != nil {
		return fmt.Errorf("adding repository: %w", err)
	}

	statusf(flagQuiet, "Added %s to %s\n", ref, cfgPath)

	return nil
}
