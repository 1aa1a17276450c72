package vectorstore

import "errors"

var (
	// ErrIndexUnavailable indicates the backing index could not be reached
	// or refused the operation. Wrapped errors carry backend detail.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch indicates a vector whose dimensionality differs
	// from the one the collection was initialized with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
