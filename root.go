package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/synophoto/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagEnvFile    string
	flagRoot       string
	flagVisibility string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// skipConfigCommands lists commands that must work before a valid config
// exists. Uses CommandPath() for explicit matching.
var skipConfigCommands = map[string]bool{
	"synophoto config init": true,
}

// CLIFlags are the global output flags.
type CLIFlags struct {
	JSON    bool
	Verbose bool
	Quiet   bool
}

// CLIContext is what PersistentPreRunE hands to every subcommand through
// the command context.
type CLIContext struct {
	Holder    *config.Holder
	Overrides config.CLIOverrides
	Logger    *slog.Logger
	Flags     CLIFlags
}

// Config returns the current config snapshot.
func (cc *CLIContext) Config() *config.Config {
	return cc.Holder.Config()
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext stored by PersistentPreRunE. Commands
// listed in skipConfigCommands must not call it.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("synophoto: command ran without a loaded config")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "synophoto",
		Short:   "Synology Photos gateway",
		Long:    "Browse, stream, and moderate a Synology Photos library through a shared, rate-limited session.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfigCommands[cmd.CommandPath()] {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "config file path")
	pf.StringVar(&flagEnvFile, "env-file", "", "dotenv file seeding the environment (default .env if present)")
	pf.StringVar(&flagRoot, "root", "", "override the root folder id")
	pf.StringVar(&flagVisibility, "visibility", "", `override the visibility mode ("hide" or "show")`)
	pf.BoolVar(&flagJSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newThumbCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newReportsCmd())
	cmd.AddCommand(newFeedbackCmd())
	cmd.AddCommand(newRateLimitCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores a CLIContext in the command's context.
func loadConfig(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(flagEnvFile); err != nil {
		return err
	}

	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		EnvFile:    flagEnvFile,
	}

	// Only pass flags the user explicitly set.
	if cmd.Flags().Changed("root") {
		root := flagRoot
		cli.RootFolderID = &root
	}

	if cmd.Flags().Changed("visibility") {
		mode := flagVisibility
		cli.Visibility = &mode
	}

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := CLIFlags{JSON: flagJSON, Verbose: flagVerbose, Quiet: flagQuiet}

	cc := &CLIContext{
		Holder:    config.NewHolder(cfg, path),
		Overrides: cli,
		Logger:    buildLogger(&cfg.Logging, flags, os.Stderr),
		Flags:     flags,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reloadOnHangup(ctx, cc.Holder, cli, cc.Logger, nil)
	cmd.SetContext(withCLIContext(ctx, cc))

	return nil
}

// buildLogger creates an slog.Logger from the logging config and CLI flags.
// The config level is the baseline; --verbose and --quiet override it
// because CLI flags always win.
func buildLogger(lc *config.LoggingConfig, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	if lc != nil {
		switch lc.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	format := "auto"
	if lc != nil {
		format = lc.LogFormat
	}

	if useJSONLogs(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// useJSONLogs picks JSON for "json", text for "text", and for "auto" text
// only when w is a terminal.
func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return true
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// httpClientTimeout applies when the configured timeout is unusable.
const httpClientTimeout = 30 * time.Second

// newHTTPClient returns the upstream HTTP client with the configured timeout.
func newHTTPClient(nc config.NetworkConfig) *http.Client {
	timeout := config.Duration(nc.Timeout)
	if timeout <= 0 {
		timeout = httpClientTimeout
	}

	return &http.Client{Timeout: timeout}
}
