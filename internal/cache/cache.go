package cache

import (
	"context"
	"errors"
	"fmt"
)

// Options controls how the cache is consulted.
type Options struct {
	// UseCache enables reading and writing the store. When false every
	// lookup misses and nothing is written.
	UseCache bool `toml:"use_cache"`
	// ForceRecompute ignores existing entries and replaces them with
	// freshly computed values.
	ForceRecompute bool `toml:"force_recompute"`
}

// Cache stores encoded values in a Store under key fingerprints.
type Cache struct {
	store Store
	opts  Options
}

// New creates a Cache over store. A nil store disables caching.
func New(store Store, opts Options) *Cache {
	if store == nil {
		opts.UseCache = false
	}
	return &Cache{store: store, opts: opts}
}

// Options returns the options the cache was built with.
func (c *Cache) Options() Options { return c.opts }

func (c *Cache) enabled() bool {
	return c != nil && c.opts.UseCache
}

// Load decodes the entry for key into v. It reports false on a miss, when
// caching is disabled, or when recomputation is forced.
func (c *Cache) Load(ctx context.Context, key Key, v interface{}) (bool, error) {
	if !c.enabled() || c.opts.ForceRecompute {
		return false, nil
	}
	data, err := c.store.Get(ctx, key.Fingerprint())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := Decode(data, v); err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	return true, nil
}

// Save writes v under key. With ForceRecompute set an existing entry is
// replaced; otherwise an existing entry is kept and ErrExists returned.
func (c *Cache) Save(ctx context.Context, key Key, v interface{}) error {
	if !c.enabled() {
		return nil
	}
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	fp := key.Fingerprint()
	if c.opts.ForceRecompute {
		if err := c.store.Delete(ctx, fp); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	if err := c.store.Put(ctx, fp, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// GetOrCompute returns the cached value for key, or computes, stores and
// returns it. The boolean reports a cache hit. Losing a write race to
// another process is not an error: entries for a key are equivalent.
func GetOrCompute[T any](ctx context.Context, c *Cache, key Key, compute func(context.Context) (T, error)) (T, bool, error) {
	var v T
	hit, err := c.Load(ctx, key, &v)
	if err != nil {
		return v, false, err
	}
	if hit {
		return v, true, nil
	}

	v, err = compute(ctx)
	if err != nil {
		return v, false, err
	}
	if err := c.Save(ctx, key, v); err != nil && !errors.Is(err, ErrExists) {
		return v, false, err
	}
	return v, false, nil
}
