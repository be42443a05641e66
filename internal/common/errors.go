package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes failures for retry policy and HTTP mapping. These
// are kinds, not types: any error can be tagged with a kind by wrapping.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindRateLimited         ErrorKind = "rate_limited"
	KindUpstreamTimeout     ErrorKind = "upstream_timeout"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindParse               ErrorKind = "parse"
	KindRobotsBlocked       ErrorKind = "robots_blocked"
	KindInternal            ErrorKind = "internal"
)

// KindError wraps an error with a kind tag.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// NewError creates a kind-tagged error from a format string.
func NewError(kind ErrorKind, format string, args ...interface{}) error {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WrapError tags an existing error with a kind. Returns nil for nil input.
func WrapError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to internal.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether an error kind is transient and worth retrying
// by the task layer.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUpstreamTimeout, KindUpstreamUnavailable, KindRateLimited:
		return true
	}
	return false
}

// HTTPStatus maps an error kind to the API status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindParse, KindRobotsBlocked:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
