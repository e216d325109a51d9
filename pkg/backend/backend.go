// Package backend opens the stores named by a configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"clusterfs/pkg/catalog"
	"clusterfs/pkg/cluster"
	"clusterfs/pkg/cluster/redisstore"
	"clusterfs/pkg/config"
	"clusterfs/pkg/log"
)

const pingTimeout = 5 * time.Second

// Backends holds the opened stores.
type Backends struct {
	Documents *catalog.Store
	States    cluster.Store

	redis *redisstore.Store
}

// Open opens the document catalog and the configured cluster state store.
// A relative database path is resolved against cfg.Root.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	documents, err := catalog.NewStore(DatabasePath(cfg))
	if err != nil {
		return nil, err
	}

	backends := &Backends{Documents: documents}

	switch cfg.State.Backend {
	case config.BackendSqlite, "":
		backends.States = documents.Clusters()
	case config.BackendMemory:
		log.Warn().Msg("Cluster counters are kept in memory and lost on exit")
		backends.States = cluster.NewMemoryStore()
	case config.BackendRedis:
		store := redisstore.Open(redisstore.Options{
			Address:   cfg.State.Redis.Address,
			Password:  cfg.State.Redis.Password,
			DB:        cfg.State.Redis.DB,
			KeyPrefix: cfg.State.Redis.KeyPrefix,
		})

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			_ = documents.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.State.Redis.Address, err)
		}
		backends.redis = store
		backends.States = store
	default:
		_ = documents.Close()
		return nil, fmt.Errorf("%w: unknown state backend %q", config.ErrInvalidConfig, cfg.State.Backend)
	}

	log.Info().
		Str("database", DatabasePath(cfg)).
		Str("state_backend", cfg.State.Backend).
		Msg("Backends opened")
	return backends, nil
}

// DatabasePath returns the absolute catalog path of cfg.
func DatabasePath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Database) {
		return cfg.Database
	}
	return filepath.Join(cfg.Root, cfg.Database)
}

// Close closes every opened store.
func (b *Backends) Close() error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.Documents != nil {
		errs = append(errs, b.Documents.Close())
	}
	return errors.Join(errs...)
}
