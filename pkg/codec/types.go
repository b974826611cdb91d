package codec

import (
	"github.com/charmbracelet/log"

	"github.com/matzehuels/docsnap/pkg/registry"
)

// Tuple is an ordered, fixed-size sequence. It survives a round trip as a
// Tuple rather than a plain slice.
type Tuple []any

// Set is an unordered collection of comparable values.
type Set map[any]struct{}

// NewSet builds a set from items.
func NewSet(items ...any) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Has reports whether item is a member of s.
func (s Set) Has(item any) bool {
	_, ok := s[item]
	return ok
}

// External is implemented by values that live outside the stored document
// and are identified by an external key instead of their full state.
type External interface {
	ExternalID() []any
}

// ExternalRef is what an external pointer unflattens to when no
// Externalizer is configured.
type ExternalRef struct {
	ID []any
}

// ExternalID implements External so an ExternalRef flattens back to the
// same pointer.
func (r ExternalRef) ExternalID() []any { return r.ID }

// Externalizer resolves external pointers while unflattening.
type Externalizer interface {
	Restore(id []any) (any, error)
}

// Option configures a Serializer or Unserializer.
type Option func(*options)

type options struct {
	forceUnicode bool
	externalizer Externalizer
	logger       *log.Logger
}

func newOptions(opts []Option) options {
	o := options{forceUnicode: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	return o
}

// WithForceUnicode controls how UTF-8 byte slices are stored. When true
// (the default) they are stored as plain text; when false they are
// wrapped in an "_enc" tag and come back as []byte.
func WithForceUnicode(force bool) Option {
	return func(o *options) { o.forceUnicode = force }
}

// WithExternalizer resolves "_ext" pointers through e.
func WithExternalizer(e Externalizer) Option {
	return func(o *options) { o.externalizer = e }
}

// WithLogger sets the logger used for migration events.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func registryOrDefault(r *registry.Registry) *registry.Registry {
	if r == nil {
		return registry.Default()
	}
	return r
}
