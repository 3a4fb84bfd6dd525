package restore

import "errors"

var (
	// ErrInvalidRequest rejects a request before any model is invoked.
	ErrInvalidRequest = errors.New("invalid restoration request")

	// ErrNotReady is returned when the session has not initialized, is
	// still loading, or failed to load.
	ErrNotReady = errors.New("restoration session is not ready")

	// ErrReleased is returned once the session has been released.
	ErrReleased = errors.New("restoration session has been released")

	// ErrBusy is returned for overlapping Restore calls; a session runs
	// one restoration at a time.
	ErrBusy = errors.New("a restoration is already in progress")
)
