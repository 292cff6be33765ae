// Package vserrors names the error taxonomy shared across the storage
// engine, the HNSW index, and the search layer.
package vserrors

import "errors"

var (
	// ErrNotFound means the key is logically absent (never written, or
	// shadowed by a tombstone at the highest timestamp).
	ErrNotFound = errors.New("vectorstore: key not found")

	// ErrDimensionMismatch means a vector's length does not equal the
	// store's configured dimension D. Writes are rejected outright.
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")

	// ErrCorruption means an on-disk structure (SST header/index, HNSW
	// snapshot) failed a structural check: truncated file, header/index
	// mismatch, or a D mismatch against the global HNSW header. Fatal on
	// startup.
	ErrCorruption = errors.New("vectorstore: corrupted on-disk structure")

	// ErrEmptyIndex is returned by callers that choose to surface KNN on
	// an empty store as an error; the core KNN entry points instead
	// return an empty sequence (spec: empty-index is not an error).
	ErrEmptyIndex = errors.New("vectorstore: index is empty")
)
