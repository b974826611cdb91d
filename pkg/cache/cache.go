// Package cache provides byte-level caches for flattened snapshots.
//
// Three backends implement [Cache]: [NullCache] for disabled caching,
// [FileCache] for the CLI and [RedisCache] for shared deployments. Keys
// are produced by a [Keyer] so that all backends agree on naming.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores opaque byte values under string keys.
type Cache interface {
	// Get returns the value stored under key. The boolean is false on a
	// miss; err is reserved for backend failures.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer names cache entries.
type Keyer interface {
	// DocumentKey names the cached snapshot of one stored document.
	DocumentKey(collection string, id any) string

	// QueryKey names the cached result of a query. The filter is hashed.
	QueryKey(collection string, filter any) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// DocumentKey returns "doc:<collection>:<id>".
func (DefaultKeyer) DocumentKey(collection string, id any) string {
	return fmt.Sprintf("doc:%s:%v", collection, id)
}

// QueryKey returns "query:<collection>:<hash of filter>".
func (DefaultKeyer) QueryKey(collection string, filter any) string {
	return hashKey("query:"+collection, filter)
}
