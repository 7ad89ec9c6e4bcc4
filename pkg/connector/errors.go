package connector

import "errors"

var (
	// ErrRemote is returned when the EMR endpoint reports an error status.
	ErrRemote = errors.New("source endpoint error")

	// ErrAuth is returned when the EMR rejects the configured API key.
	ErrAuth = errors.New("source authentication failed")
)
