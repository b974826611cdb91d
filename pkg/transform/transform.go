// Package transform plugs the snapshot codec into a document store's
// write and read paths.
//
// A Transform is safe for concurrent use. Every call borrows its own
// Serializer or Unserializer from a pool, so the per-call identity and
// reference tables of one reconstruction never leak into another.
package transform

import (
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/matzehuels/docsnap/pkg/codec"
	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/registry"
	"github.com/matzehuels/docsnap/pkg/snapshot"
)

// Transform converts values on their way into and out of storage.
type Transform struct {
	registry *registry.Registry
	logger   *log.Logger

	serializers   sync.Pool
	unserializers sync.Pool
}

// New creates a Transform over reg. A nil reg uses registry.Default();
// opts are applied to every codec the Transform hands out.
func New(reg *registry.Registry, logger *log.Logger, opts ...codec.Option) *Transform {
	if reg == nil {
		reg = registry.Default()
	}
	if logger == nil {
		logger = log.Default()
	}
	opts = append([]codec.Option{codec.WithLogger(logger)}, opts...)

	t := &Transform{registry: reg, logger: logger}
	t.serializers.New = func() any { return codec.NewSerializer(reg, opts...) }
	t.unserializers.New = func() any { return codec.NewUnserializer(reg, opts...) }
	return t
}

// Registry returns the registry names are resolved through.
func (t *Transform) Registry() *registry.Registry { return t.registry }

// Incoming flattens v before it is written.
func (t *Transform) Incoming(v any) (any, error) {
	s := t.serializers.Get().(*codec.Serializer)
	defer t.serializers.Put(s)
	return s.Flatten(v)
}

// IncomingDocument flattens v and requires the result to be a document,
// which is what a top-level insert needs.
func (t *Transform) IncomingDocument(v any) (bson.D, error) {
	flat, err := t.Incoming(v)
	if err != nil {
		return nil, err
	}
	doc, ok := snapshot.AsMapping(flat)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupportedValue, "%T does not flatten to a document", v)
	}
	return doc, nil
}

// Outgoing rebuilds the value stored in doc. Documents without an
// instance tag come back as map[string]any.
func (t *Transform) Outgoing(doc any) (any, error) {
	u := t.unserializers.Get().(*codec.Unserializer)
	defer t.unserializers.Put(u)
	return u.Unflatten(doc)
}

// IncomingQuery flattens a find filter so registered values, enums and
// tuples compare equal to their stored snapshots. A nil filter matches
// everything.
func (t *Transform) IncomingQuery(filter any) (bson.D, error) {
	if filter == nil {
		return bson.D{}, nil
	}
	return t.IncomingDocument(filter)
}

// IncomingUpdate flattens the operands of an update document. Every
// top-level key must be an update operator such as "$set".
func (t *Transform) IncomingUpdate(update any) (bson.D, error) {
	doc, err := t.IncomingDocument(update)
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		return nil, errors.New(errors.ErrCodeUnsupportedValue, "update document is empty")
	}
	for _, e := range doc {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, errors.New(errors.ErrCodeUnsupportedValue, "update key %q is not an operator; use a replace instead", e.Key)
		}
	}
	t.logger.Debug("flattened update", "operators", len(doc))
	return doc, nil
}
