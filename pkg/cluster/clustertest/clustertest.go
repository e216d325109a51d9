// Package clustertest holds a behavioural test suite shared by cluster.Store
// implementations.
package clustertest

import (
	"context"
	"errors"
	"fmt"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"clusterfs/pkg/cluster"
)

// StoreSuite exercises a cluster.Store. Embed it in a concrete suite and assign
// Store in that suite's SetupTest.
type StoreSuite struct {
	suite.Suite
	Store cluster.Store
}

var errAbort = errors.New("abort update")

// TestGetMissing tests reading an unknown bucket.
func (s *StoreSuite) TestGetMissing() {
	_, err := s.Store.Get(context.Background(), "Missing")
	s.ErrorIs(err, cluster.ErrStateNotFound)
}

// TestUpdateCreatesLazily tests that a new bucket starts with all digits at 1.
func (s *StoreSuite) TestUpdateCreatesLazily() {
	ctx := context.Background()

	var seen cluster.Digits
	err := s.Store.Update(ctx, "User", 3, func(current cluster.Digits) (cluster.Digits, error) {
		seen = current
		return cluster.Digits{1, 1, 2}, nil
	})
	s.Require().NoError(err)
	s.Equal(cluster.Digits{1, 1, 1}, seen)

	state, err := s.Store.Get(ctx, "User")
	s.Require().NoError(err)
	s.Equal("User", state.Name)
	s.Equal(cluster.Digits{1, 1, 2}, state.Digits)
}

// TestUpdateErrorDoesNotWrite tests that a failing update leaves no state behind.
func (s *StoreSuite) TestUpdateErrorDoesNotWrite() {
	ctx := context.Background()

	err := s.Store.Update(ctx, "User", 3, func(current cluster.Digits) (cluster.Digits, error) {
		return nil, errAbort
	})
	s.ErrorIs(err, errAbort)

	_, err = s.Store.Get(ctx, "User")
	s.ErrorIs(err, cluster.ErrStateNotFound)
}

// TestPutOverwrites tests seeding and overwriting a bucket.
func (s *StoreSuite) TestPutOverwrites() {
	ctx := context.Background()

	s.Require().NoError(s.Store.Put(ctx, "User", cluster.Digits{1, 1, 4096}))
	s.Require().NoError(s.Store.Put(ctx, "User", cluster.Digits{255, 300, 400}))

	state, err := s.Store.Get(ctx, "User")
	s.Require().NoError(err)
	s.Equal(cluster.Digits{255, 300, 400}, state.Digits)
}

// TestBucketsAreIndependent tests that buckets do not share counters.
func (s *StoreSuite) TestBucketsAreIndependent() {
	ctx := context.Background()
	allocator := cluster.NewAllocator(s.Store)

	for i := 0; i < 3; i++ {
		_, err := allocator.Allocate(ctx, cluster.Request{Bucket: "User", Depth: 3, MaxItems: 10})
		s.Require().NoError(err)
	}

	result, err := allocator.Allocate(ctx, cluster.Request{Bucket: "Photo", Depth: 3, MaxItems: 10})
	s.Require().NoError(err)
	s.Equal(cluster.Digits{1, 1, 1}, result.Digits)
}

// TestAllocationSequence tests the rollover order for a small fan-out.
func (s *StoreSuite) TestAllocationSequence() {
	ctx := context.Background()
	allocator := cluster.NewAllocator(s.Store)

	expected := []string{"1/1", "1/1", "1/2", "1/2", "2/1", "2/1", "2/2", "2/2"}
	for i, want := range expected {
		result, err := allocator.Allocate(ctx, cluster.Request{Bucket: "User", Depth: 3, MaxItems: 2})
		s.Require().NoError(err)
		s.Equal(want, result.Path[0]+"/"+result.Path[1], "allocation %d", i)
	}

	state, err := s.Store.Get(ctx, "User")
	s.Require().NoError(err)
	s.Equal(cluster.Digits{1, 1, 1}, state.Digits, "counter wraps after filling every level")
}

// TestConcurrentAllocations tests that concurrent allocations never observe the same counter.
func (s *StoreSuite) TestConcurrentAllocations() {
	const workers = 16

	ctx := context.Background()
	allocator := cluster.NewAllocator(s.Store)

	results := make([]string, workers)
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			result, err := allocator.Allocate(groupCtx, cluster.Request{Bucket: "Upload", Depth: 3, MaxItems: 1000})
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			results[i] = result.Digits.String()
			return nil
		})
	}
	s.Require().NoError(group.Wait())

	unique := make(map[string]struct{}, workers)
	for _, digits := range results {
		unique[digits] = struct{}{}
	}
	s.Len(unique, workers)

	state, err := s.Store.Get(ctx, "Upload")
	s.Require().NoError(err)
	s.Equal(cluster.Digits{1, 1, workers + 1}, state.Digits)
}
