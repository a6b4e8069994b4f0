package engine

import "errors"

// Failure classes for one query. Handlers map these onto HTTP statuses;
// everything else is an internal error.
var (
	// ErrBadRequest marks missing or malformed caller input.
	ErrBadRequest = errors.New("bad request")

	// ErrScoring marks a failed threat-signal computation. The request is
	// refused rather than served unscored.
	ErrScoring = errors.New("scoring failed")

	// ErrGeneration marks an upstream generation failure. No session state
	// is committed for the request.
	ErrGeneration = errors.New("generation failed")

	// ErrPersistence marks a failed state commit. Requests fail closed:
	// a response is never served if the threat state backing its tier
	// decision could not be recorded.
	ErrPersistence = errors.New("persistence failed")
)
