// Package cache stores JSON-encoded values with a TTL. The discovery result cache and the
// enrichment response cache both sit on top of it, so a cached value is never the source of truth.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get decodes the value under key into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPattern removes every key matching a glob pattern like "restaurants:*".
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// Noop never stores anything. Used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error { return nil }
func (Noop) DeleteByPattern(context.Context, string) (int, error) { return 0, nil }
