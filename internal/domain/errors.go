package domain

import "errors"

var (
	// ErrNotFound is returned when a day or report does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDaySealed is returned when writing detail rows into a sealed day.
	ErrDaySealed = errors.New("day is sealed")

	// ErrTransientIO marks a store write that failed and may succeed on retry.
	ErrTransientIO = errors.New("transient store error")

	// ErrFatal marks an error that must stop the daemon, such as a durable
	// write that exhausted its retries.
	ErrFatal = errors.New("fatal")

	// ErrAnalysisUnavailable wraps every AI provider failure. It is always
	// recovered by the fallback evaluator.
	ErrAnalysisUnavailable = errors.New("analysis unavailable")

	// ErrMalformedResponse is returned when a provider answer cannot be used.
	ErrMalformedResponse = errors.New("malformed analysis response")

	// ErrClockAnomaly is reported when wall clock and stored event times disagree.
	ErrClockAnomaly = errors.New("clock anomaly")

	// ErrCorruptState is returned when a stored day fails invariant checks.
	ErrCorruptState = errors.New("corrupt state")

	// ErrAlreadyRunning is returned when another instance holds the lock file.
	ErrAlreadyRunning = errors.New("another instance is already running")
)
