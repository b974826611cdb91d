package cache

import (
	"context"
	"time"
)

// NullCache satisfies Cache without keeping anything, so every read goes
// to the collection. The CLI falls back to it for --no-cache and when no
// cache directory can be resolved.
type NullCache struct{}

// NewNullCache returns a Cache that always misses.
func NewNullCache() Cache { return &NullCache{} }

func (*NullCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (*NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (*NullCache) Delete(context.Context, string) error { return nil }

func (*NullCache) Close() error { return nil }

var _ Cache = (*NullCache)(nil)
