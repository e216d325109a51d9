// Package redisstore persists cluster states in Redis. Each bucket is one
// string key holding the "1/2/3" form of its counter.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	retry "github.com/sethvargo/go-retry"

	"clusterfs/pkg/cluster"
	"clusterfs/pkg/log"
)

const (
	defaultKeyPrefix   = "clusterfs:cluster:"
	defaultMaxAttempts = 64
	defaultBackoff     = 2 * time.Millisecond
)

// Options configures the connection and key layout.
type Options struct {
	// Address of the Redis server.
	Address string
	// Password required when connecting to the Redis server.
	Password string
	// DB to connect to.
	DB int
	// KeyPrefix is prepended to bucket names.
	KeyPrefix string
	// MaxAttempts bounds how many times an update re-runs after losing a WATCH race.
	MaxAttempts uint64
}

// DefaultOptions returns options for a local Redis.
func DefaultOptions() Options {
	return Options{
		Address:     "localhost:6379",
		KeyPrefix:   defaultKeyPrefix,
		MaxAttempts: defaultMaxAttempts,
	}
}

// Store implements cluster.Store on top of a Redis client.
type Store struct {
	client      redis.UniversalClient
	keyPrefix   string
	maxAttempts uint64
	isOwner     bool
}

// Open connects to Redis with the given options. The returned store owns the
// connection and closes it in Close.
func Open(options Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})
	store := New(client, options)
	store.isOwner = true
	return store
}

// New wraps an existing client. Zero option fields fall back to defaults.
func New(client redis.UniversalClient, options Options) *Store {
	if options.KeyPrefix == "" {
		options.KeyPrefix = defaultKeyPrefix
	}
	if options.MaxAttempts == 0 {
		options.MaxAttempts = defaultMaxAttempts
	}
	return &Store{
		client:      client,
		keyPrefix:   options.KeyPrefix,
		maxAttempts: options.MaxAttempts,
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection if this store opened it.
func (s *Store) Close() error {
	if !s.isOwner {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(name string) string {
	return s.keyPrefix + name
}

// Get reads the counter of a bucket.
func (s *Store) Get(ctx context.Context, name string) (*cluster.State, error) {
	raw, err := s.client.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, cluster.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", name, err)
	}

	digits, err := cluster.ParseDigits(raw)
	if err != nil {
		return nil, err
	}
	return &cluster.State{Name: name, Digits: digits}, nil
}

// Put overwrites the counter of a bucket.
func (s *Store) Put(ctx context.Context, name string, digits cluster.Digits) error {
	if err := s.client.Set(ctx, s.key(name), digits.String(), 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", name, err)
	}
	return nil
}

// Update runs fn inside a WATCH/MULTI transaction on the bucket key. When another
// client writes the key between the read and the EXEC, Redis rejects the
// transaction and fn runs again against the fresh value.
func (s *Store) Update(ctx context.Context, name string, depth int, fn cluster.UpdateFunc) error {
	key := s.key(name)
	backoff := retry.WithMaxRetries(s.maxAttempts, retry.NewConstant(defaultBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current := cluster.NewDigits(depth)

			raw, err := tx.Get(ctx, key).Result()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return fmt.Errorf("redis get %q: %w", name, err)
			default:
				if current, err = cluster.ParseDigits(raw); err != nil {
					return err
				}
			}

			next, err := fn(current)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next.String(), 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("bucket", name).Msg("Cluster update lost a race, re-reading")
			return retry.RetryableError(err)
		}
		return err
	})
}
