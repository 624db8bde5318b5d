package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key does not exist or has expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the ephemeral secret and counter store. Single-use tokens (magic
// links, verification and reset tokens, pending login challenges) and rate
// limit counters live here, never in the relational store.
type Cache interface {
	// Get returns the value for key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL. A TTL <= 0 is invalid.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Take atomically reads and removes key, so a single-use token can only
	// ever be consumed once even under concurrent requests. Returns ErrMiss
	// when the key is absent.
	Take(ctx context.Context, key string) ([]byte, error)

	// Increment adds one to the integer counter at key and returns the new
	// value. A missing key counts as zero and is created with the given TTL.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases any underlying resources.
	Close() error
}
