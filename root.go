package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/locomote-sh/locomote/internal/config"
)

// version is set at build time via ldflags and echoed into the HTTP
// User-Agent (internal/lococlient) and cobra's --version output.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagRepo       string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that resolve configuration
// themselves (e.g. `serve`, which mounts every repository rather than
// one selected by reference string).
const skipConfigAnnotation = "skipConfig"

// cliFlags is the parsed, read-only snapshot of the root command's
// persistent flags, bundled into CLIContext so subcommands never touch
// the package-level flag vars directly.
type cliFlags struct {
	ConfigPath string
	Repo       string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext bundles the resolved repository config, parsed flags, and
// logger. Built once in PersistentPreRunE.
type CLIContext struct {
	Repo   *config.ResolvedRepository
	Cfg    *config.Config
	Flags  cliFlags
	Logger *slog.Logger
}

// Statusf prints a status line to stdout unless --quiet was set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
// Returns nil if no config was loaded (commands with skipConfigAnnotation).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics. Panics are always
// programmer errors — the command tree guarantees this is populated by
// PersistentPreRunE before RunE executes.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure the command " +
			"does not skip config loading (no skipConfigAnnotation) or " +
			"explicitly loads config in its RunE")
	}

	return cc
}

// httpClientTimeout is the fallback request timeout used by
// wiring.go's httpClientFor when a repository's config doesn't specify
// network.connect_timeout.
const httpClientTimeout = 30 * time.Second

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "locomote",
		Short:   "Locomote content sync client and server",
		Long:    "Fetches and serves a Locomote CMS repository's file database and cached content.",
		Version: version,
		// Silence Cobra's default error/usage printing — handled in main().
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE resolves one repository's configuration before
		// every command. `serve`, which mounts every configured repository,
		// is annotated to skip this and resolve for itself.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd, args)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "repository reference (e.g. acme/site, or acme/site/staging)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging (HTTP requests, config resolution)")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// loadConfig resolves the effective configuration for one repository from
// the four-layer override chain (defaults -> file -> env -> CLI) and
// stores the result in the command's context.
func loadConfig(cmd *cobra.Command, args []string) error {
	logger := buildLogger(nil)

	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	if cmd.Flags().Changed("repo") {
		cli.Repo = flagRepo
	}

	env := config.ReadEnvOverrides()

	logger.Debug("resolving config",
		slog.String("config_path", cli.ConfigPath),
		slog.String("cli_repo", cli.Repo),
		slog.String("env_config", env.ConfigPath),
		slog.String("env_repo", env.Repo),
	)

	resolved, cfg, err := config.ResolveRepository(env, cli, cli.Repo, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Debug("config resolved", slog.String("ref", resolved.Ref))

	finalLogger := buildLogger(&resolved.Logging)
	flags := cliFlags{
		ConfigPath: cli.ConfigPath,
		Repo:       resolved.Ref,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Debug:      flagDebug,
		Quiet:      flagQuiet,
	}
	cc := &CLIContext{Repo: resolved, Cfg: cfg, Flags: flags, Logger: finalLogger}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config's
// log level, overridden by --verbose/--debug/--quiet (CLI flags always
// win; Cobra enforces they're mutually exclusive). Pass nil for the
// pre-config bootstrap logger.
func buildLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
