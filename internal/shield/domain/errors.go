package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the policy engine. Callers classify failures with
// errors.Is; user-facing surfaces map these to non-sensitive messages.
var (
	// ErrInvalidInput covers malformed requests: bad durations, missing
	// targets, unknown message actions, unparseable payloads.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidDuration is returned when an override duration falls outside
	// the accepted 1..1440 minute range.
	ErrInvalidDuration = fmt.Errorf("%w: duration must be between 1 and 1440 minutes", ErrInvalidInput)

	// ErrMissingTarget is returned when an override grant names no domain or keyword.
	ErrMissingTarget = fmt.Errorf("%w: a domain or keyword value is required", ErrInvalidInput)

	// ErrAuthRequired is returned when a password-gated operation is attempted
	// without supplying a password while a credential is configured.
	ErrAuthRequired = errors.New("password required")

	// ErrWrongCredential is returned when a supplied password does not verify.
	ErrWrongCredential = errors.New("incorrect password")

	// ErrLocked is returned while the login throttle is engaged.
	ErrLocked = errors.New("too many failed attempts, try again later")

	// ErrStorageUnavailable wraps failures of the durable settings store.
	// Decisions never degrade this into an Allow verdict.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
