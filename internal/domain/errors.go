package domain

import "errors"

var (
	// ErrJobNotFound is returned when a delivery job cannot be found.
	ErrJobNotFound = errors.New("delivery job not found")

	// ErrWindowNotFound is returned when no context window exists for a number.
	ErrWindowNotFound = errors.New("context window not found")

	// ErrSessionUnavailable is returned when the portal session could not
	// be established after exhausting login retries.
	ErrSessionUnavailable = errors.New("portal session unavailable")

	// ErrNoTemplate is returned when no content template is registered
	// for the requested family.
	ErrNoTemplate = errors.New("no template available")
)
