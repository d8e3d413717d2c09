package apiclient

import (
	"errors"
	"fmt"
)

// Sentinel errors exposed to the UI layer. Each carries a user-readable
// message; the raw upstream error is logged, never surfaced verbatim.
var (
	ErrBadRequest      = errors.New("The request was invalid. Please try again.")
	ErrUnauthorized    = errors.New("Your session has expired. Please sign in again.")
	ErrForbidden       = errors.New("You don't have access to this resource.")
	ErrNotFound        = errors.New("The requested resource was not found.")
	ErrTooManyRequests = errors.New("Too many requests. Please wait a moment and try again.")
	ErrServer          = errors.New("Something went wrong on our end. Please try again later.")
	ErrTimeout         = errors.New("Request timed out. Please check your connection.")
	ErrNetwork         = errors.New("Network error. Please check your connection.")
)

// statusError maps an HTTP status code to its user-facing error.
func statusError(code int) error {
	switch {
	case code == 400:
		return ErrBadRequest
	case code == 401:
		return ErrUnauthorized
	case code == 403:
		return ErrForbidden
	case code == 404:
		return ErrNotFound
	case code == 429:
		return ErrTooManyRequests
	case code >= 500:
		return ErrServer
	default:
		return fmt.Errorf("unexpected response status %d", code)
	}
}
