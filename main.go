package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tonimelisma/synophoto/internal/apperr"
)

func main() {
	ctx := shutdownContext(context.Background(), slog.Default())

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
// Gateway errors are shown as the envelope a client would receive, with the
// underlying cause under --verbose.
func exitOnError(err error) {
	fmt.Fprintln(os.Stderr, describeError(err, flagVerbose))
	os.Exit(exitCode(err))
}

func describeError(err error, verbose bool) string {
	if !isGatewayError(err) {
		return fmt.Sprintf("Error: %v", err)
	}

	svc := apperr.ToServiceError(err)
	msg := fmt.Sprintf("Error: %s (%s)", svc.Message, svc.TextCode)

	if flagJSON {
		if data, mErr := json.Marshal(svc); mErr == nil {
			msg = string(data)
		}
	}

	if verbose && svc.Message != err.Error() {
		msg += "\n  cause: " + err.Error()
	}

	return msg
}

func isGatewayError(err error) bool {
	for _, target := range []error{
		apperr.ErrNotFound,
		apperr.ErrBadRequest,
		apperr.ErrRateLimited,
		apperr.ErrRangeNotSatisfiable,
		apperr.ErrConfiguration,
		apperr.ErrTransientNetwork,
		apperr.ErrSessionInvalid,
		apperr.ErrUpstreamFatal,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// exitCode separates caller mistakes (2) from upstream and local failures (1).
func exitCode(err error) int {
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrBadRequest) {
		return 2
	}

	return 1
}
