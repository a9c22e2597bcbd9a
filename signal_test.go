package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/synophoto/internal/config"
)

func TestShutdownContext_FirstSignalCancels(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := shutdownContext(parent, logger)

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("failed to send SIGINT: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of SIGINT")
	}

	cancel()
}

func TestShutdownContext_ParentCancelStopsGoroutine(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := shutdownContext(parent, logger)

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of parent cancel")
	}
}

func TestReloadOnHangup(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[synology]\nroot_folder_id = \"1\"\n"), 0o600))

	cli := config.CLIOverrides{ConfigPath: path}

	cfg, resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	require.NoError(t, err)

	holder := config.NewHolder(cfg, resolved)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	reloadOnHangup(ctx, holder, cli, logger, done)

	hangup := func() error {
		t.Helper()
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("no reload within 2 seconds of SIGHUP")
			return nil
		}
	}

	require.NoError(t, os.WriteFile(path, []byte("[synology]\nroot_folder_id = \"2\"\n"), 0o600))
	require.NoError(t, hangup())
	assert.Equal(t, "2", holder.Config().Synology.RootFolderID)

	require.NoError(t, os.WriteFile(path, []byte("[visibility]\nmode = \"never\"\n"), 0o600))
	require.Error(t, hangup())
	assert.Equal(t, "2", holder.Config().Synology.RootFolderID, "failed reload keeps the previous snapshot")
}
