package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Establish the shared upstream session",
		Long: `Log in with the configured service account unless a session is already
stored. With --force the stored session is replaced even if it still works.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Bool("force", false, "replace the stored session")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored upstream session",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the stored session and its version",
		Args:  cobra.NoArgs,
		RunE:  runSession,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	force, _ := cmd.Flags().GetBool("force")

	if force {
		v, err := a.sessions.Version(ctx)
		if err != nil {
			return err
		}

		if _, err := a.sessions.ForceRelogin(ctx, v); err != nil {
			return err
		}
	} else if _, err := a.sessions.GetOrCreate(ctx); err != nil {
		return err
	}

	a.logger.Info("session ready", "forced", force, "shared", a.shared)
	a.cc.Statusf("Logged in.\n")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sessions.Invalidate(ctx); err != nil {
		return err
	}

	a.cc.Statusf("Logged out.\n")

	return nil
}

// sessionOutput is the JSON schema for `session --json`. Secrets are
// reported only by presence.
type sessionOutput struct {
	Present   bool      `json:"present"`
	Version   int64     `json:"version"`
	Shared    bool      `json:"shared_store"`
	HasToken  bool      `json:"has_csrf_token"`
	HasDevice bool      `json:"has_device_id"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func runSession(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.sessions.Version(ctx)
	if err != nil {
		return err
	}

	sess, err := a.sessions.Current(ctx)
	if err != nil {
		return err
	}

	out := sessionOutput{Version: v, Shared: a.shared}
	if sess != nil {
		out.Present = true
		out.HasToken = sess.CSRFToken != ""
		out.HasDevice = sess.DeviceID != ""
		out.CreatedAt = sess.CreatedAt
		out.UpdatedAt = sess.UpdatedAt
	}

	if a.cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	if !out.Present {
		fmt.Printf("No session stored (version %d).\n", out.Version)
		return nil
	}

	fmt.Printf("Session:     present\n")
	fmt.Printf("Version:     %d\n", out.Version)
	fmt.Printf("Store:       %s\n", storeKind(out.Shared))
	fmt.Printf("CSRF token:  %t\n", out.HasToken)
	fmt.Printf("Device ID:   %t\n", out.HasDevice)
	fmt.Printf("Created:     %s\n", formatTime(out.CreatedAt))
	fmt.Printf("Updated:     %s\n", formatTime(out.UpdatedAt))

	return nil
}

func storeKind(shared bool) string {
	if shared {
		return "redis (shared)"
	}

	return "in-process"
}
