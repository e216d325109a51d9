package cluster

import (
	"context"
	"fmt"
	"path/filepath"

	"clusterfs/pkg/log"
	"clusterfs/pkg/metrics"
)

// MaxDepth bounds the number of levels of a bucket. Every level is one digit of
// the persisted counter.
const MaxDepth = 32

// Request describes one allocation.
type Request struct {
	Bucket   string
	Depth    int
	MaxItems int
	Hex      bool
}

// Validate checks the request bounds.
func (r Request) Validate() error {
	if r.Bucket == "" {
		return fmt.Errorf("%w: bucket name is required", ErrInvalidRequest)
	}
	if r.Depth < 1 {
		return fmt.Errorf("%w: depth must be at least 1, got %d", ErrInvalidRequest, r.Depth)
	}
	if r.Depth > MaxDepth {
		return fmt.Errorf("%w: depth must be at most %d, got %d", ErrInvalidRequest, MaxDepth, r.Depth)
	}
	if r.MaxItems < 1 {
		return fmt.Errorf("%w: max items must be at least 1, got %d", ErrInvalidRequest, r.MaxItems)
	}
	return nil
}

// Result is the slot handed out by one allocation.
type Result struct {
	Bucket string `json:"bucket"`
	// Path holds the directory segments, depth-1 of them, taken from the counter
	// before it was advanced.
	Path []string `json:"path"`
	// Digits is the counter as it was before this allocation.
	Digits Digits `json:"digits"`
	// Next is the counter persisted by this allocation.
	Next Digits `json:"next"`
	// Wrapped reports that the top level cycled back to 1.
	Wrapped bool `json:"wrapped"`
}

// Dir joins Path with the platform separator. It is empty for depth 1.
func (r *Result) Dir() string {
	if len(r.Path) == 0 {
		return ""
	}
	return filepath.Join(r.Path...)
}

// Allocator hands out directory slots backed by a Store.
type Allocator struct {
	store   Store
	metrics *metrics.Metrics
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithMetrics records allocations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) {
		a.metrics = m
	}
}

// NewAllocator creates an allocator over store.
func NewAllocator(store Store, opts ...Option) *Allocator {
	allocator := &Allocator{store: store}
	for _, opt := range opts {
		opt(allocator)
	}
	return allocator
}

// Allocate returns the current slot of the request's bucket and advances the
// bucket's counter in the same critical section.
func (a *Allocator) Allocate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *Result
	err := a.store.Update(ctx, req.Bucket, req.Depth, func(current Digits) (Digits, error) {
		if len(current) != req.Depth {
			return nil, fmt.Errorf("%w: bucket %q has depth %d, requested %d",
				ErrDepthMismatch, req.Bucket, len(current), req.Depth)
		}

		// A carry out of the top digit recycles the top level instead of failing:
		// buckets never run out of slots, they start sharing directories again.
		next, wrapped := current.Advance(req.MaxItems)
		result = &Result{
			Bucket:  req.Bucket,
			Path:    current.Dirs(req.Hex),
			Digits:  current,
			Next:    next,
			Wrapped: wrapped,
		}
		return next, nil
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", req.Bucket).Msg("Allocation failed")
		return nil, err
	}

	if result.Wrapped {
		log.Warn().
			Str("bucket", req.Bucket).
			Int("depth", req.Depth).
			Int("max_items", req.MaxItems).
			Msg("Top cluster level wrapped around")
	}
	a.metrics.ObserveAllocation(req.Bucket, result.Wrapped)

	log.Debug().
		Str("bucket", req.Bucket).
		Str("cluster", result.Digits.String()).
		Str("next", result.Next.String()).
		Msg("Slot allocated")
	return result, nil
}

// Peek returns the stored state of a bucket without advancing it.
func (a *Allocator) Peek(ctx context.Context, bucket string) (*State, error) {
	return a.store.Get(ctx, bucket)
}

// Seed overwrites the counter of a bucket.
func (a *Allocator) Seed(ctx context.Context, bucket string, digits Digits) error {
	if bucket == "" || len(digits) == 0 {
		return fmt.Errorf("%w: bucket and digits are required", ErrInvalidRequest)
	}
	for _, value := range digits {
		if value < 0 {
			return fmt.Errorf("%w: negative digit in %q", ErrInvalidDigits, digits.String())
		}
	}
	return a.store.Put(ctx, bucket, digits)
}
