package vector

import "errors"

var (
	// ErrNotFound is returned when no chunk matches the requested record.
	ErrNotFound = errors.New("chunk not found")

	// ErrDimensions is returned when an embedding's length does not match the
	// store's configured dimensions.
	ErrDimensions = errors.New("embedding dimensions mismatch")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")
)
