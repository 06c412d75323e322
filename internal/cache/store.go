// Package cache persists computed analysis artifacts keyed by segment and
// parameter fingerprint. Entries are immutable once written; invalidation is
// explicit through Options.ForceRecompute.
package cache

import (
	"context"
	"errors"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound = errors.New("cache entry not found")
	ErrExists   = errors.New("cache entry already exists")
)

// Store is a byte-oriented key/value backend. Put never overwrites: writing
// an existing key fails with ErrExists.
type Store interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

var (
	_ Store = (*BboltStore)(nil)
	_ Store = (*FSStore)(nil)
	_ Store = (*RedisStore)(nil)
)
