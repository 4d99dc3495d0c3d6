package core

import (
	"errors"
	"fmt"
)

// Failure taxonomy for the voice core. Every remote client and device wrapper
// maps its failures onto one of these sentinels so callers can branch with
// errors.Is instead of string matching.
var (
	// ErrPermissionDenied means the user (or OS) refused access to a device
	// capability. Terminal for the current attempt; there is no fallback tier.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransportFailure covers network errors and non-2xx responses on any
	// remote call. It triggers the next fallback tier when one exists.
	ErrTransportFailure = errors.New("transport failure")

	// ErrEmptyResult means the operation succeeded but produced nothing
	// usable: no speech detected, empty transcript, clip below the noise
	// threshold, or an empty model response.
	ErrEmptyResult = errors.New("empty result")
)

// PermissionDeniedError wraps ErrPermissionDenied with the capability that
// was refused (e.g. "microphone", "notifications").
func PermissionDeniedError(capability string) error {
	return fmt.Errorf("%s: %w", capability, ErrPermissionDenied)
}

// TransportError wraps a cause (or an HTTP status) as an ErrTransportFailure.
func TransportError(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, ErrTransportFailure)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransportFailure, cause)
}

// StatusError reports a non-2xx response as an ErrTransportFailure.
func StatusError(op string, status int) error {
	return fmt.Errorf("%s: unexpected status %d: %w", op, status, ErrTransportFailure)
}

// EmptyResultError wraps ErrEmptyResult with a short reason used for the
// localized user-facing message ("too short", "no transcript", ...).
func EmptyResultError(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrEmptyResult)
}
