package rag

import "errors"

var (
	// ErrRetrievalUnavailable indicates the question could not be matched
	// against the index: the query embedding failed or the search did.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrGenerationUnavailable indicates retrieval succeeded but the answer
	// could not be generated.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
