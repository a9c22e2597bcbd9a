// Package apperr defines the error taxonomy that callers of the gateway layer
// see. Upstream result codes never escape this layer except inside
// UpstreamError for diagnostics. Use errors.Is against the sentinels below.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the gateway taxonomy.
var (
	ErrTransientNetwork    = errors.New("synophoto: transient upstream network error")
	ErrSessionInvalid      = errors.New("synophoto: upstream session invalid")
	ErrUpstreamFatal       = errors.New("synophoto: upstream request failed")
	ErrNotFound            = errors.New("synophoto: not found")
	ErrConfiguration       = errors.New("synophoto: configuration missing")
	ErrRateLimited         = errors.New("synophoto: rate limited")
	ErrBadRequest          = errors.New("synophoto: bad request")
	ErrRangeNotSatisfiable = errors.New("synophoto: range not satisfiable")
)

// UpstreamError wraps a taxonomy sentinel with the upstream API name, method,
// result code, and HTTP status for debugging.
type UpstreamError struct {
	API    string
	Method string
	Code   int // upstream error code, 0 if none was reported
	Status int // HTTP status of the last response, 0 on transport failure
	Err    error
}

func (e *UpstreamError) Error() string {
	target := e.API
	if e.Method != "" {
		target += "." + e.Method
	}

	switch {
	case e.Code != 0:
		return fmt.Sprintf("synology: %s failed (code %d, HTTP %d): %v", target, e.Code, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("synology: %s failed (HTTP %d): %v", target, e.Status, e.Err)
	default:
		return fmt.Sprintf("synology: %s failed: %v", target, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// UpstreamCode extracts the upstream result code from err, if any.
func UpstreamCode(err error) (int, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Code != 0 {
		return ue.Code, true
	}

	return 0, false
}

// IsUpstream reports whether err belongs to the upstream failure taxonomy,
// as opposed to cancellation, a store failure, or a local bug.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// NotFoundError is returned for absent, hidden, and out-of-boundary entities
// alike. The message is the only thing that varies.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound returns a NotFoundError with the given message.
func NotFound(message string) error {
	return &NotFoundError{Message: message}
}

// ConfigError names a required setting that is missing or invalid.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("synophoto: missing configuration %s", e.Setting)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// MissingConfig returns a ConfigError for the named setting.
func MissingConfig(setting string) error {
	return &ConfigError{Setting: setting}
}

// RateLimitedError carries the Retry-After hint of a rejected rate-limit check.
type RateLimitedError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("synophoto: rate limit exceeded for %q, retry after %s", e.Scope, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// BadRequestError reports invalid caller input.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

func (e *BadRequestError) Unwrap() error {
	return ErrBadRequest
}

// BadRequest returns a BadRequestError with the given message.
func BadRequest(message string) error {
	return &BadRequestError{Message: message}
}
