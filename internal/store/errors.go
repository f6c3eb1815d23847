package store

import "errors"

var (
	// ErrNotFound indicates the requested book or checkpoint does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoCheckpointAvailable indicates no completed checkpoint exists at
	// or before the requested progress.
	ErrNoCheckpointAvailable = errors.New("no checkpoint available")

	// ErrLeaseHeld indicates another worker holds an unexpired lease on
	// the book.
	ErrLeaseHeld = errors.New("lease held by another worker")
)
