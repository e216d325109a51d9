package cluster

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps cluster states in process memory. Updates for the same
// bucket are serialised by a per-bucket mutex; different buckets proceed in
// parallel.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State

	lockMutex   sync.Mutex
	bucketLocks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      make(map[string]State),
		bucketLocks: make(map[string]*sync.Mutex),
	}
}

// getBucketMutex returns or creates the mutex guarding one bucket.
func (s *MemoryStore) getBucketMutex(name string) *sync.Mutex {
	s.lockMutex.Lock()
	defer s.lockMutex.Unlock()

	if mutex, exists := s.bucketLocks[name]; exists {
		return mutex
	}

	mutex := &sync.Mutex{}
	s.bucketLocks[name] = mutex
	return mutex
}

// Get returns a copy of the stored state.
func (s *MemoryStore) Get(ctx context.Context, name string) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[name]
	if !ok {
		return nil, ErrStateNotFound
	}
	state.Digits = state.Digits.Clone()
	return &state, nil
}

// Put overwrites the state of a bucket.
func (s *MemoryStore) Put(ctx context.Context, name string, digits Digits) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mutex := s.getBucketMutex(name)
	mutex.Lock()
	defer mutex.Unlock()

	s.write(name, digits)
	return nil
}

// Update runs fn under the bucket's mutex.
func (s *MemoryStore) Update(ctx context.Context, name string, depth int, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mutex := s.getBucketMutex(name)
	mutex.Lock()
	defer mutex.Unlock()

	s.mu.RLock()
	state, ok := s.states[name]
	s.mu.RUnlock()

	current := NewDigits(depth)
	if ok {
		current = state.Digits.Clone()
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	s.write(name, next)
	return nil
}

func (s *MemoryStore) write(name string, digits Digits) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[name] = State{
		Name:      name,
		Digits:    digits.Clone(),
		UpdatedAt: time.Now(),
	}
}
