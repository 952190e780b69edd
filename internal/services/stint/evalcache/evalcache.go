// Package evalcache caches script evaluation results keyed by compiled
// expression, hand identity, and context fingerprint.
//
// Entries may register invalidation tags; Invalidate removes every entry
// carrying a tag without scanning the whole cache. The cache is strictly
// best-effort: callers treat errors as misses and recompute.
package evalcache

import "context"

// Cache stores serialized evaluation results.
type Cache interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key and registers it with the given tags.
	Set(ctx context.Context, key string, value []byte, tags []string) error
	// Invalidate removes every entry registered with tag.
	Invalidate(ctx context.Context, tag string) error
}
