package schedule

import "errors"

// Error kinds returned by the engine. Callers match with errors.Is and map
// each kind to a user-facing message or HTTP status; the engine never
// swallows a failure.
var (
	// ErrValidation marks malformed or inconsistent input: bad time ranges,
	// unknown providers or services. Recoverable by correcting the request.
	ErrValidation = errors.New("validation failed")

	// ErrSlotUnavailable is a conflict detected at commit time. Recoverable
	// by retrying with a different slot; retry policy belongs to the caller.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrInvalidTransition is an illegal state-machine edge. This indicates a
	// caller bug and is worth logging as unexpected.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrForbidden is an authorization failure. Surfaced, never ignored.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a stale or unknown identifier.
	ErrNotFound = errors.New("not found")
)
