package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/config"
	"github.com/tonimelisma/synophoto/internal/reports"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests either
// set globals after newRootCmd() returns, or let Cobra parse flags through
// cmd.SetArgs() + cmd.Execute().

// isolateEnv clears every environment variable the config chain reads and
// moves into an empty directory so no stray .env file is picked up.
func isolateEnv(t *testing.T) string {
	t.Helper()

	for _, k := range []string{
		config.EnvConfig, config.EnvBaseURL, config.EnvUsername, config.EnvPassword,
		config.EnvRootFolderID, config.EnvVisibilityMode, config.EnvRedisURL,
	} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	t.Chdir(dir)

	return dir
}

// writeCLIConfig writes a config whose reports database lives in dir.
func writeCLIConfig(t *testing.T, dir, extra string) string {
	t.Helper()

	path := filepath.Join(dir, "config.toml")
	content := "[reports]\ndatabase_path = \"" + filepath.ToSlash(filepath.Join(dir, "data", "reports.db")) + "\"\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return cmd.ExecuteContext(ctx)
}

// --- buildLogger tests ---

func TestBuildLogger_Levels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		flags   CLIFlags
		enabled slog.Level
		blocked slog.Level
	}{
		{"config info", "info", CLIFlags{}, slog.LevelInfo, slog.LevelDebug},
		{"config warn", "warn", CLIFlags{}, slog.LevelWarn, slog.LevelInfo},
		{"config error", "error", CLIFlags{}, slog.LevelError, slog.LevelWarn},
		{"verbose wins", "error", CLIFlags{Verbose: true}, slog.LevelDebug, slog.LevelDebug - 4},
		{"quiet wins", "debug", CLIFlags{Quiet: true}, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := buildLogger(&config.LoggingConfig{LogLevel: tt.level, LogFormat: "text"}, tt.flags, &bytes.Buffer{})

			assert.True(t, logger.Handler().Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Handler().Enabled(context.Background(), tt.blocked))
		})
	}
}

func TestBuildLogger_Format(t *testing.T) {
	var buf bytes.Buffer

	buildLogger(&config.LoggingConfig{LogLevel: "info", LogFormat: "json"}, CLIFlags{}, &buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	buildLogger(&config.LoggingConfig{LogLevel: "info", LogFormat: "text"}, CLIFlags{}, &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestUseJSONLogs_AutoOffTerminal(t *testing.T) {
	assert.True(t, useJSONLogs("auto", &bytes.Buffer{}), "non-file writers are not terminals")

	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, useJSONLogs("auto", f), "regular files are not terminals")
	assert.False(t, useJSONLogs("text", f))
	assert.True(t, useJSONLogs("json", &bytes.Buffer{}))
}

// --- command wiring tests ---

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{
		"login", "logout", "session", "ls", "stat", "get", "thumb",
		"report", "reports", "feedback", "ratelimit", "stats", "config",
	} {
		assert.Contains(t, names, want)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := isolateEnv(t)
	path := writeCLIConfig(t, dir, "[synology]\nroot_folder_id = \"7\"\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--root", "42", "--visibility", "show", "config", "show"})
	cmd.SetOut(&bytes.Buffer{})

	var seen *CLIContext

	show, _, err := cmd.Find([]string{"config", "show"})
	require.NoError(t, err)

	show.RunE = func(c *cobra.Command, _ []string) error {
		seen = mustCLIContext(c.Context())
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, cmd.ExecuteContext(ctx))
	require.NotNil(t, seen)

	assert.Equal(t, path, seen.Holder.Path())
	assert.Equal(t, "42", seen.Config().Synology.RootFolderID)
	assert.Equal(t, config.VisibilityShow, seen.Config().Visibility.Mode)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := isolateEnv(t)
	path := writeCLIConfig(t, dir, "[visibility]\nmode = \"sometimes\"\n")

	err := execute(t, "--config", path, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "visibility.mode")
}

func TestConfigInit_WritesOnce(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "nested", "config.toml")

	require.NoError(t, execute(t, "--config", path, "config", "init"))
	assert.FileExists(t, path)

	err := execute(t, "--config", path, "config", "init")
	require.ErrorIs(t, err, config.ErrConfigExists)

	require.NoError(t, execute(t, "--config", path, "config", "show"), "the template is a valid config")
}

func TestReportAndFeedbackCommands(t *testing.T) {
	dir := isolateEnv(t)
	path := writeCLIConfig(t, dir, "[ratelimit]\nfeedback = { limit = 1, window = \"60s\" }\n")

	require.NoError(t, execute(t, "--config", path, "-q", "report", "abc_1", "--filename", "beach.jpg", "--client", "10.0.0.1"))
	require.NoError(t, execute(t, "--config", path, "-q", "report", "abc_1", "--client", "10.0.0.1"), "duplicates are not errors")

	err := execute(t, "--config", path, "-q", "report", "../etc", "--client", "10.0.0.2")
	require.ErrorIs(t, err, apperr.ErrBadRequest)

	require.NoError(t, execute(t, "--config", path, "-q", "feedback", "great", "photos"))

	store, err := reports.Open(context.Background(), filepath.Join(dir, "data", "reports.db"), reports.Options{})
	require.NoError(t, err)
	defer store.Close()

	page, err := store.ListReports(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "beach.jpg", page.Entries[0].Filename)

	fb, err := store.ListFeedback(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, fb.Entries, 1)
	assert.Equal(t, "great photos", fb.Entries[0].Message)
	assert.Equal(t, cliUserAgent, fb.Entries[0].UserAgent)
}

func TestStatsCommand(t *testing.T) {
	dir := isolateEnv(t)
	path := writeCLIConfig(t, dir, "")

	store, err := reports.Open(context.Background(), filepath.Join(dir, "data", "reports.db"), reports.Options{})
	require.NoError(t, err)
	require.NoError(t, store.TrackDownload(context.Background(), "101", "beach.jpg", "v1"))
	require.NoError(t, store.Close())

	require.NoError(t, execute(t, "--config", path, "--json", "stats", "--period", "7d"))

	err = execute(t, "--config", path, "stats", "--period", "1y")
	require.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer

	printStats(&buf, reports.Stats{
		Period:                  reports.Period7d,
		Downloads:               2,
		PopularItemsByDownloads: []reports.ItemCount{{ItemID: "101", ItemFilename: "beach.jpg", Count: 2}},
	})

	out := buf.String()
	assert.Contains(t, out, "Downloads:    2")
	assert.Contains(t, out, "beach.jpg")
	assert.NotContains(t, out, "FOLDER", "empty top lists are omitted")
}

func TestRateLimitCommand(t *testing.T) {
	dir := isolateEnv(t)
	path := writeCLIConfig(t, dir, "")

	require.NoError(t, execute(t, "--config", path, "ratelimit", "reports", "1.2.3.4"))

	err := execute(t, "--config", path, "ratelimit", "uploads", "1.2.3.4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope")
}

func TestDescribeError(t *testing.T) {
	flagJSON = false

	msg := describeError(apperr.NotFound("Item not found"), false)
	assert.Equal(t, "Error: Item not found (NOT_FOUND)", msg)

	msg = describeError(apperr.MissingConfig("synology.password"), true)
	assert.Contains(t, msg, "Service unavailable")
	assert.Contains(t, msg, "synology.password", "cause shown under --verbose")

	msg = describeError(assert.AnError, false)
	assert.Equal(t, "Error: "+assert.AnError.Error(), msg)

	assert.Equal(t, 2, exitCode(apperr.BadRequest("x")))
	assert.Equal(t, 1, exitCode(apperr.ErrTransientNetwork))
}

func TestSessionOptions_LocalTTLWithoutSharedStore(t *testing.T) {
	sc := config.DefaultConfig().Session

	local := sessionOptions(sc, false, nil)
	shared := sessionOptions(sc, true, nil)

	assert.Equal(t, config.Duration(sc.LocalTTL), local.TTL)
	assert.Equal(t, config.Duration(sc.TTL), shared.TTL)
	assert.Equal(t, uint(sc.LockPollAttempts), shared.PollAttempts)
}
