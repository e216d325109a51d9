package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clusterfs/pkg/cluster"
)

// ClusterStore is the cluster.Store view of a catalog.
type ClusterStore struct {
	store *Store
}

var _ cluster.Store = (*ClusterStore)(nil)

// Clusters returns the cluster state store sharing this catalog's database.
func (s *Store) Clusters() *ClusterStore {
	return &ClusterStore{store: s}
}

// Get returns the state of the named bucket.
func (c *ClusterStore) Get(ctx context.Context, name string) (*cluster.State, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var (
		raw       string
		updatedAt time.Time
	)
	err := c.store.db.QueryRowContext(ctx,
		`SELECT digits, updated_at FROM clusters WHERE name = ?`, name,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cluster.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	digits, err := cluster.ParseDigits(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: bucket %s: %w", ErrDatabaseError, name, err)
	}

	return &cluster.State{Name: name, Digits: digits, UpdatedAt: updatedAt}, nil
}

// Put overwrites the state of a bucket.
func (c *ClusterStore) Put(ctx context.Context, name string, digits cluster.Digits) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if err := upsertCluster(ctx, c.store.db, name, digits); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// Update runs fn inside a write transaction on the bucket's row.
func (c *ClusterStore) Update(ctx context.Context, name string, depth int, fn cluster.UpdateFunc) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrDatabaseError, err)
	}
	defer func() { _ = tx.Rollback() }()

	current := cluster.NewDigits(depth)

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT digits FROM clusters WHERE name = ?`, name).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	default:
		current, err = cluster.ParseDigits(raw)
		if err != nil {
			return fmt.Errorf("%w: bucket %s: %w", ErrDatabaseError, name, err)
		}
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if err := upsertCluster(ctx, tx, name, next); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %w", ErrDatabaseError, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCluster(ctx context.Context, db execer, name string, digits cluster.Digits) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO clusters (name, digits, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		 digits = excluded.digits,
		 updated_at = excluded.updated_at`,
		name, digits.String(), now, now,
	)
	return err
}
