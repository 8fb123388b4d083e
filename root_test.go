package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locomote-sh/locomote/internal/config"
)

// resetGlobalFlags restores the package-level flag vars buildLogger reads,
// so tests that flip them don't leak into later tests.
func resetGlobalFlags(t *testing.T) {
	t.Helper()

	oldVerbose, oldDebug, oldQuiet := flagVerbose, flagDebug, flagQuiet
	t.Cleanup(func() {
		flagVerbose, flagDebug, flagQuiet = oldVerbose, oldDebug, oldQuiet
	})
}

func TestBuildLogger_Default(t *testing.T) {
	resetGlobalFlags(t)
	flagVerbose, flagDebug, flagQuiet = false, false, false

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_Verbose(t *testing.T) {
	resetGlobalFlags(t)
	flagVerbose = true

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Debug(t *testing.T) {
	resetGlobalFlags(t)
	flagDebug = true

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_QuietOverrides(t *testing.T) {
	resetGlobalFlags(t)
	flagQuiet = true

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
}

func TestBuildLogger_ConfigDebug(t *testing.T) {
	resetGlobalFlags(t)

	logger := buildLogger(&config.LoggingConfig{LogLevel: "debug"})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_ConfigInfo(t *testing.T) {
	resetGlobalFlags(t)

	logger := buildLogger(&config.LoggingConfig{LogLevel: "info"})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_VerboseOverridesConfig(t *testing.T) {
	resetGlobalFlags(t)
	flagVerbose = true

	logger := buildLogger(&config.LoggingConfig{LogLevel: "error"})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_UnknownLogLevelFallsBackToWarn(t *testing.T) {
	resetGlobalFlags(t)

	logger := buildLogger(&config.LoggingConfig{LogLevel: "bogus"})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestCliContextFrom_NilContext(t *testing.T) {
	cc := cliContextFrom(context.Background())
	assert.Nil(t, cc)
}

func TestCliContextFrom_WithCLIContext(t *testing.T) {
	expected := &CLIContext{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Flags:  cliFlags{Repo: "acme/site"},
	}
	ctx := context.WithValue(context.Background(), cliContextKey{}, expected)

	cc := cliContextFrom(ctx)
	assert.Same(t, expected, cc)
	assert.Equal(t, "acme/site", cc.Flags.Repo)
}

func TestMustCLIContext_Panics(t *testing.T) {
	assert.PanicsWithValue(t,
		"BUG: CLIContext not found in context — ensure the command "+
			"does not skip config loading (no skipConfigAnnotation) or "+
			"explicitly loads config in its RunE",
		func() { mustCLIContext(context.Background()) },
	)
}

func TestMustCLIContext_Returns(t *testing.T) {
	expected := &CLIContext{Logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	ctx := context.WithValue(context.Background(), cliContextKey{}, expected)

	cc := mustCLIContext(ctx)
	assert.Same(t, expected, cc)
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"serve", "sync", "reset", "status", "add", "reload"}
	for _, name := range expected {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "repo", "json", "verbose", "debug", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "expected persistent flag %q", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	pairs := [][]string{
		{"--verbose", "--debug"},
		{"--verbose", "--quiet"},
		{"--debug", "--quiet"},
	}

	for _, flags := range pairs {
		t.Run(flags[0]+"_"+flags[1], func(t *testing.T) {
			cmd := newRootCmd()
			// "status" carries skipConfigAnnotation, so mutual exclusivity
			// fails before config resolution needs a config file.
			cmd.SetArgs(append(append([]string{}, flags...), "status"))

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "none of the others can be")
		})
	}
}

func TestNewRootCmd_StatusSkipsConfig(t *testing.T) {
	cmd := newRootCmd()

	sub, _, err := cmd.Find([]string{"status"})
	require.NoError(t, err)
	assert.Equal(t, "true", sub.Annotations[skipConfigAnnotation])

	sub.SetContext(context.Background())
	err = cmd.PersistentPreRunE(sub, nil)
	assert.NoError(t, err)
}

func TestAnnotationBasedSkipConfig(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"status", "reload", "add", "serve"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, "true", sub.Annotations[skipConfigAnnotation],
			"command %q should have skipConfig annotation", name)
	}

	for _, name := range []string{"sync", "reset"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Empty(t, sub.Annotations[skipConfigAnnotation],
			"command %q should NOT have skipConfig annotation", name)
	}
}
