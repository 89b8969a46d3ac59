package cache

import (
	"context"
	"errors"

	"kvitto/internal/core"
)

// Store is the persistence contract used by the read-through helper and the
// fetch pipeline.
type Store interface {
	Put(ctx context.Context, name, key string, payload any) error
	Get(ctx context.Context, name, key string, out any) error
	List(ctx context.Context, name string) ([]string, error)
}

var _ Store = (*FileStore)(nil)

// GetOrFetch returns the cached value for (name, key) when present. Otherwise
// it calls fetch, stores the result and returns it. The bool reports a hit.
// Fetch errors are returned unchanged and nothing is written. A corrupt entry
// is treated as a miss and overwritten.
func GetOrFetch[T any](ctx context.Context, store Store, name, key string, fetch func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	err := store.Get(ctx, name, key, &cached)
	if err == nil {
		return cached, true, nil
	}
	if !errors.Is(err, core.ErrNotFound) && !errors.Is(err, core.ErrIO) {
		var zero T
		return zero, false, err
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if err := store.Put(ctx, name, key, v); err != nil {
		return v, false, err
	}
	return v, false, nil
}
