package cluster_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"clusterfs/pkg/cluster"
	"clusterfs/pkg/cluster/clustertest"
)

// MemoryStoreTestSuite runs the shared store suite against MemoryStore.
type MemoryStoreTestSuite struct {
	clustertest.StoreSuite
}

// SetupTest runs before each test.
func (s *MemoryStoreTestSuite) SetupTest() {
	s.Store = cluster.NewMemoryStore()
}

// TestGetReturnsCopy tests that callers cannot mutate stored digits.
func (s *MemoryStoreTestSuite) TestGetReturnsCopy() {
	ctx := context.Background()
	s.Require().NoError(s.Store.Put(ctx, "User", cluster.Digits{1, 2, 3}))

	state, err := s.Store.Get(ctx, "User")
	s.Require().NoError(err)
	state.Digits[0] = 99

	again, err := s.Store.Get(ctx, "User")
	s.Require().NoError(err)
	s.Equal(cluster.Digits{1, 2, 3}, again.Digits)
}

// TestCancelledContext tests that a cancelled context is rejected.
func (s *MemoryStoreTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Store.Update(ctx, "User", 3, func(current cluster.Digits) (cluster.Digits, error) {
		s.Fail("update must not run")
		return current, nil
	})
	s.ErrorIs(err, context.Canceled)
}

// TestMemoryStoreSuite runs the memory store test suite.
func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}
