package apperr

import (
	"errors"
	"math"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried in service error envelopes.
const (
	TextCodeNotFound            = "NOT_FOUND"
	TextCodeBadRequest          = "BAD_REQUEST"
	TextCodeRateLimited         = "RATE_LIMITED"
	TextCodeRangeNotSatisfiable = "RANGE_NOT_SATISFIABLE"
	TextCodeUpstream            = "UPSTREAM_ERROR"
	TextCodeUnavailable         = "SERVICE_UNAVAILABLE"
)

// ToServiceError maps a gateway error onto the envelope route handlers
// serialize. NotFound keeps its message; configuration and unknown failures
// collapse to a generic "Service unavailable" so internals never leak.
func ToServiceError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var (
		notFound   *NotFoundError
		badRequest *BadRequestError
		limited    *RateLimitedError
		upstream   *UpstreamError
	)

	switch {
	case errors.As(err, &notFound):
		return goerrors.New(notFound.Message, goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithTextCode(TextCodeNotFound)
	case errors.Is(err, ErrNotFound):
		return goerrors.New("Not found", goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithTextCode(TextCodeNotFound)
	case errors.As(err, &badRequest):
		return goerrors.New(badRequest.Message, goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(TextCodeBadRequest)
	case errors.As(err, &limited):
		return goerrors.New("Too many requests. Please wait before submitting again.", goerrors.CategoryRateLimit).
			WithCode(http.StatusTooManyRequests).
			WithTextCode(TextCodeRateLimited).
			WithMetadata(map[string]any{
				"scope":               limited.Scope,
				"retry_after_seconds": int(math.Ceil(limited.RetryAfter.Seconds())),
			})
	case errors.Is(err, ErrRangeNotSatisfiable):
		return goerrors.New("Requested range not satisfiable", goerrors.CategoryBadInput).
			WithCode(http.StatusRequestedRangeNotSatisfiable).
			WithTextCode(TextCodeRangeNotSatisfiable)
	case errors.Is(err, ErrConfiguration):
		return unavailable()
	case errors.As(err, &upstream):
		var code any
		if upstream.Code != 0 {
			code = upstream.Code
		}

		return goerrors.New(upstream.Error(), goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeUpstream).
			WithMetadata(map[string]any{
				"provider":            "synology",
				"synology_error_code": code,
			})
	default:
		return unavailable()
	}
}

func unavailable() *goerrors.Error {
	return goerrors.New("Service unavailable", goerrors.CategoryInternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(TextCodeUnavailable)
}
