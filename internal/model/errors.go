package model

import "errors"

// Error taxonomy shared across the core. Callers classify with errors.Is;
// the HTTP layer maps each kind to a status code.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")

	// ErrUpstreamUnavailable marks vector index transport failures. It is
	// handled inside the search service (fallback path) and never surfaced
	// to API callers.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
