package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tonimelisma/synophoto/internal/config"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. A stuck download or lock wait can then
// still be interrupted.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		// Wait for second signal, then force exit.
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// reloadOnHangup re-resolves the configuration into holder on every SIGHUP
// until ctx ends. A failed reload keeps the previous snapshot. Components
// reading the holder per call (boundary, visibility) see the change on their
// next call. done, when non-nil, receives each reload's outcome.
func reloadOnHangup(ctx context.Context, holder *config.Holder, cli config.CLIOverrides, logger *slog.Logger, done chan<- error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				err := holder.Reload(cli)
				if err != nil {
					logger.Error("config reload failed, keeping previous settings",
						slog.String("path", holder.Path()),
						slog.String("error", err.Error()),
					)
				} else {
					logger.Info("config reloaded", slog.String("path", holder.Path()))
				}

				if done != nil {
					done <- err
				}
			}
		}
	}()
}
