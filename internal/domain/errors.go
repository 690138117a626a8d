package domain

import "errors"

var (
	// ErrNotFound reports an unknown or expired session, or a file index
	// that does not exist in the session's metadata.
	ErrNotFound = errors.New("not found")

	// ErrGone reports a session that was destroyed recently enough that a
	// tombstone still remembers it.
	ErrGone = errors.New("session destroyed")

	// ErrNotReady reports a session that exists but has not reached the
	// Ready phase yet (no playable file resolved).
	ErrNotReady = errors.New("session not ready")

	// ErrInvalidLocator reports a resource locator that could not be parsed
	// into a stable resource key.
	ErrInvalidLocator = errors.New("invalid resource locator")

	// ErrUpstream reports a failure of an external search index.
	ErrUpstream = errors.New("upstream search failure")
)
