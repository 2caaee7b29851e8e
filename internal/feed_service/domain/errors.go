package domain

import "errors"

var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrFeedBusy indicates a feed already has a generation in flight;
	// callers treat it as a recoverable no-op, not a failure.
	ErrFeedBusy = errors.New("feed already has a generation in flight")
	// ErrFeedInactive indicates a manual trigger against a deactivated
	// feed without the force flag.
	ErrFeedInactive = errors.New("feed is not active")
	// ErrInvalidTransition indicates a status update that the generation
	// state machine does not permit, e.g. completing a failed run.
	ErrInvalidTransition = errors.New("invalid generation status transition")
)
