package cache

// ScopedKeyer wraps a Keyer with a prefix so several applications or
// tenants can share one backend without colliding.
//
// Example usage:
//
//	billing := NewScopedKeyer(NewDefaultKeyer(), "billing:")
//	key := billing.DocumentKey("invoices", id) // "billing:doc:invoices:<id>"
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// DocumentKey generates a prefixed document key.
func (k *ScopedKeyer) DocumentKey(collection string, id any) string {
	return k.prefix + k.inner.DocumentKey(collection, id)
}

// QueryKey generates a prefixed query key.
func (k *ScopedKeyer) QueryKey(collection string, filter any) string {
	return k.prefix + k.inner.QueryKey(collection, filter)
}
