package cluster

import "errors"

var (
	// ErrStateNotFound is returned when no counter has been stored for a bucket.
	ErrStateNotFound = errors.New("cluster state not found")

	// ErrInvalidRequest is returned when an allocation request has an empty bucket,
	// a depth outside 1..MaxDepth or a capacity below one.
	ErrInvalidRequest = errors.New("invalid allocation request")

	// ErrDepthMismatch is returned when a request's depth differs from the depth the
	// bucket was created with.
	ErrDepthMismatch = errors.New("cluster depth mismatch")

	// ErrInvalidDigits is returned when a stored or supplied counter cannot be parsed.
	ErrInvalidDigits = errors.New("invalid cluster digits")
)
