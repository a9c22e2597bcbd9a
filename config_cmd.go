package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/synophoto/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a commented config file to --config, $SYNOPHOTO_CONFIG, or the
platform default path. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: runConfigInit,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		shown := *cc.Config()
		shown.Synology.Password = redactSecret(shown.Synology.Password)
		shown.Store.RedisPassword = redactSecret(shown.Store.RedisPassword)
		shown.Store.RedisURL = redactSecret(shown.Store.RedisURL)

		return printJSON(os.Stdout, shown)
	}

	return config.RenderEffective(cc.Config(), cc.Holder.Path(), os.Stdout)
}

func redactSecret(v string) string {
	if v == "" {
		return ""
	}

	return "<redacted>"
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path := flagConfigPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}

	if path == "" {
		path = config.DefaultConfigPath()
	}

	if path == "" {
		return errors.New("cannot determine config path; pass --config")
	}

	if err := config.WriteTemplate(path); err != nil {
		return err
	}

	statusf(flagQuiet, "Wrote %s\n", path)
	fmt.Println(path)

	return nil
}
