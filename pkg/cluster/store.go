package cluster

import (
	"context"
	"time"
)

// State is the persisted counter of one bucket.
type State struct {
	Name      string    `json:"name"`
	Digits    Digits    `json:"digits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateFunc receives a copy of the current digits of a bucket and returns the
// digits to persist. Returning an error aborts the update without writing.
type UpdateFunc func(current Digits) (Digits, error)

// Store persists cluster states.
type Store interface {
	// Get returns the state of the named bucket or ErrStateNotFound.
	Get(ctx context.Context, name string) (*State, error)

	// Put overwrites the state of a bucket, creating it if needed.
	Put(ctx context.Context, name string, digits Digits) error

	// Update runs fn inside a critical section keyed by name: no other Update or
	// Put for the same bucket observes the state between the read handed to fn and
	// the write of its result. A missing bucket is presented to fn as
	// NewDigits(depth) and is only created if fn succeeds.
	Update(ctx context.Context, name string, depth int, fn UpdateFunc) error
}
