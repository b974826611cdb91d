// Package observability provides hooks for metrics, tracing, and logging.
//
// The codec and the storage adapters report what they do through small
// hook interfaces instead of depending on a metrics backend. main
// registers real implementations at startup; libraries call the
// registered hooks and get no-ops by default.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetCodecHooks(&myCodecHooks{})
//	    observability.SetStoreHooks(&myStoreHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Store().OnWrite(ctx, "tests", "insert", duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Codec Hooks
// =============================================================================

// CodecHooks receives events from the flattener and unserializer. The codec
// runs synchronously inside a storage call, so these hooks carry no context.
type CodecHooks interface {
	// OnMigrate records a stored instance being moved between schema versions.
	OnMigrate(typeName string, from, to int)

	// OnFlatten records one top-level flatten and the references it emitted.
	OnFlatten(references int, duration time.Duration, err error)

	// OnUnflatten records one top-level unflatten.
	OnUnflatten(duration time.Duration, err error)
}

// =============================================================================
// Store Hooks
// =============================================================================

// StoreHooks receives events from document store operations.
type StoreHooks interface {
	// OnWrite records an insert, update, replace or delete.
	OnWrite(ctx context.Context, collection, op string, duration time.Duration, err error)

	// OnRead records a find and the number of documents decoded.
	OnRead(ctx context.Context, collection string, documents int, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCodecHooks is a no-op implementation of CodecHooks.
type NoopCodecHooks struct{}

func (NoopCodecHooks) OnMigrate(string, int, int)          {}
func (NoopCodecHooks) OnFlatten(int, time.Duration, error) {}
func (NoopCodecHooks) OnUnflatten(time.Duration, error)    {}

// NoopStoreHooks is a no-op implementation of StoreHooks.
type NoopStoreHooks struct{}

func (NoopStoreHooks) OnWrite(context.Context, string, string, time.Duration, error) {}
func (NoopStoreHooks) OnRead(context.Context, string, int, time.Duration, error)     {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	codecHooks CodecHooks = NoopCodecHooks{}
	storeHooks StoreHooks = NoopStoreHooks{}
	hooksMu    sync.RWMutex
)

// SetCodecHooks registers custom codec hooks.
// This should be called once at application startup.
func SetCodecHooks(h CodecHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		codecHooks = h
	}
}

// SetStoreHooks registers custom store hooks.
// This should be called once at application startup.
func SetStoreHooks(h StoreHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storeHooks = h
	}
}

// Codec returns the registered codec hooks.
func Codec() CodecHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return codecHooks
}

// Store returns the registered store hooks.
func Store() StoreHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storeHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	codecHooks = NoopCodecHooks{}
	storeHooks = NoopStoreHooks{}
}
