package codec

import (
	"encoding/base64"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/observability"
	"github.com/matzehuels/docsnap/pkg/registry"
	"github.com/matzehuels/docsnap/pkg/snapshot"
	"github.com/matzehuels/docsnap/pkg/version"
)

// NodeKind classifies a snapshot node.
type NodeKind int

// Node kinds, in the order Analyse tests for them.
const (
	NodeScalar NodeKind = iota
	NodeInstance
	NodeMapping
	NodeTagged
	NodeSequence
)

// String returns the kind name.
func (k NodeKind) String() string {
	switch k {
	case NodeInstance:
		return "instance"
	case NodeMapping:
		return "mapping"
	case NodeTagged:
		return "tagged"
	case NodeSequence:
		return "sequence"
	}
	return "scalar"
}

// Analyse classifies node. For NodeInstance the second result is the type
// name; for NodeTagged it is the tag.
func Analyse(node any) (NodeKind, string) {
	if _, ok := snapshot.AsMapping(node); ok {
		if name, ok := snapshot.TypeName(node); ok {
			return NodeInstance, name
		}
		return NodeMapping, ""
	}
	if _, ok := snapshot.AsSequence(node); ok {
		if tag, ok := snapshot.Tag(node); ok {
			return NodeTagged, tag
		}
		return NodeSequence, ""
	}
	return NodeScalar, ""
}

// allowedCodecs are the spellings of UTF-8 accepted in "_enc" tags,
// compared case-insensitively.
var allowedCodecs = []string{"UTF8", "UTF-8"}

type unpacker func(u *Unserializer, seq []any) (any, error)

var unpackers map[string]unpacker

func init() {
	unpackers = map[string]unpacker{
		snapshot.TupleAtom:       (*Unserializer).unpackTuple,
		snapshot.BytesAtom:       (*Unserializer).unpackBytes,
		snapshot.EncodedAtom:     (*Unserializer).unpackEncoded,
		snapshot.SetAtom:         (*Unserializer).unpackSet,
		snapshot.EnumAtom:        (*Unserializer).unpackEnum,
		snapshot.TypeAtom:        (*Unserializer).unpackType,
		snapshot.ExternalAtom:    (*Unserializer).unpackExternal,
		snapshot.ReferenceAtom:   (*Unserializer).unpackReference,
		snapshot.DereferenceAtom: (*Unserializer).unpackDereference,
		snapshot.FunctionAtom:    (*Unserializer).unpackFunction,
	}
}

// Unserializer rebuilds live values from snapshots.
type Unserializer struct {
	registry *registry.Registry
	opts     options

	// per-call state
	refs     map[int]any
	pending  map[int]any
	building map[int]bool
}

// NewUnserializer creates an unserializer resolving names through reg. A
// nil reg uses registry.Default().
func NewUnserializer(reg *registry.Registry, opts ...Option) *Unserializer {
	return &Unserializer{
		registry: registryOrDefault(reg),
		opts:     newOptions(opts),
	}
}

// Unflatten rebuilds the value node describes. Plain mappings come back
// as map[string]any and plain sequences as []any.
func (u *Unserializer) Unflatten(node any) (out any, err error) {
	start := time.Now()
	u.reset()
	defer func() {
		observability.Codec().OnUnflatten(time.Since(start), err)
		u.reset()
	}()

	if err := u.indexReferences(node); err != nil {
		return nil, err
	}
	return u.unpack(node)
}

func (u *Unserializer) reset() {
	u.refs = make(map[int]any)
	u.pending = make(map[int]any)
	u.building = make(map[int]bool)
}

// indexReferences records the payload of every "_ref" in the tree so a
// "_deref" met before its "_ref" can build the object on demand.
func (u *Unserializer) indexReferences(node any) error {
	return snapshot.Walk(node, func(_ string, n any) error {
		if tag, _ := snapshot.Tag(n); tag != snapshot.ReferenceAtom {
			return nil
		}
		seq, _ := snapshot.AsSequence(n)
		if len(seq) != 3 {
			return malformed(seq, 3)
		}
		id, err := refID(seq[1])
		if err != nil {
			return err
		}
		if _, dup := u.pending[id]; dup {
			return errors.New(errors.ErrCodeMalformedTag, "reference %d is defined twice", id)
		}
		u.pending[id] = seq[2]
		return nil
	})
}

func (u *Unserializer) unpack(node any) (any, error) {
	kind, name := Analyse(node)
	switch kind {
	case NodeInstance:
		doc, _ := snapshot.AsMapping(node)
		return u.unpackInstance(name, doc, 0)

	case NodeMapping:
		doc, _ := snapshot.AsMapping(node)
		out := make(map[string]any, len(doc))
		for _, e := range doc {
			v, err := u.unpack(e.Value)
			if err != nil {
				return nil, err
			}
			out[e.Key] = v
		}
		return out, nil

	case NodeTagged:
		seq, _ := snapshot.AsSequence(node)
		return unpackers[name](u, seq)

	case NodeSequence:
		seq, _ := snapshot.AsSequence(node)
		return u.unpackItems(seq)
	}

	return node, nil
}

func (u *Unserializer) unpackItems(seq []any) ([]any, error) {
	out := make([]any, len(seq))
	for i, item := range seq {
		v, err := u.unpack(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// unpackInstance rebuilds a registered instance. With a non-zero ref the
// allocated object is registered before its state is unpacked, so
// references back to it from inside its own state resolve to it.
func (u *Unserializer) unpackInstance(typeName string, doc bson.D, ref int) (any, error) {
	entry, err := u.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	obj, err := entry.New()
	if err != nil {
		return nil, err
	}
	if ref != 0 {
		u.refs[ref] = obj
	}
	if d, ok := obj.(registry.Defaulter); ok {
		d.SetDefaults()
	}

	var state any
	if raw, opaque := snapshot.Lookup(doc, snapshot.InstanceStateKey); opaque {
		if entry.Version() != version.DefaultVersion {
			return nil, errors.New(errors.ErrCodeMalformedTag, "%s is versioned but was stored with opaque state", typeName)
		}
		if state, err = u.unpack(raw); err != nil {
			return nil, err
		}
	} else {
		fields := make(version.State, len(doc))
		for _, e := range doc {
			if e.Key == snapshot.InstanceTypeKey {
				continue
			}
			v, err := u.unpack(e.Value)
			if err != nil {
				return nil, err
			}
			fields[e.Key] = v
		}
		if fields, err = u.migrate(entry, fields); err != nil {
			return nil, err
		}
		state = fields
	}

	if err := obj.Restore(state); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRestoreFailed, err, "restore %s", typeName)
	}
	return obj, nil
}

func (u *Unserializer) migrate(entry *registry.Entry, state version.State) (version.State, error) {
	from, err := version.Source(state)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedTag, err, "%s", entry.Name)
	}
	to := entry.Version()
	if from == to {
		delete(state, snapshot.VersionKey)
		return state, nil
	}

	state, err = version.Migrate(entry.Name, entry.Chain, state, from, to)
	if err != nil {
		return nil, err
	}
	u.opts.logger.Debug("migrated snapshot", "type", entry.Name, "from", from, "to", to)
	observability.Codec().OnMigrate(entry.Name, from, to)
	return state, nil
}

func malformed(seq []any, want int) error {
	tag, _ := seq[0].(string)
	return errors.New(errors.ErrCodeMalformedTag, "%s tag expects %d elements, got %d", tag, want, len(seq))
}

func (u *Unserializer) stringArg(seq []any, want int) (string, error) {
	if len(seq) != want {
		return "", malformed(seq, want)
	}
	s, ok := seq[want-1].(string)
	if !ok {
		return "", errors.New(errors.ErrCodeMalformedTag, "%s tag expects a string, got %T", seq[0], seq[want-1])
	}
	return s, nil
}

func refID(v any) (int, error) {
	id, ok := snapshot.ToInt(v)
	if !ok {
		return 0, errors.New(errors.ErrCodeMalformedTag, "reference id must be an integer, got %T", v)
	}
	return id, nil
}

func (u *Unserializer) unpackTuple(seq []any) (any, error) {
	items, err := u.unpackItems(seq[1:])
	if err != nil {
		return nil, err
	}
	return Tuple(items), nil
}

func (u *Unserializer) unpackBytes(seq []any) (any, error) {
	payload, err := u.stringArg(seq, 2)
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedTag, err, "invalid %s payload", snapshot.BytesEncoding)
	}
	return b, nil
}

func (u *Unserializer) unpackEncoded(seq []any) (any, error) {
	if len(seq) != 3 {
		return nil, malformed(seq, 3)
	}
	codec, ok := seq[1].(string)
	if !ok {
		return nil, errors.New(errors.ErrCodeMalformedTag, "%s codec must be a string, got %T", snapshot.EncodedAtom, seq[1])
	}
	text, ok := seq[2].(string)
	if !ok {
		return nil, errors.New(errors.ErrCodeMalformedTag, "%s text must be a string, got %T", snapshot.EncodedAtom, seq[2])
	}
	for _, allowed := range allowedCodecs {
		if strings.EqualFold(codec, allowed) {
			return []byte(text), nil
		}
	}
	return nil, errors.New(errors.ErrCodeUnsupportedCodec, "unsupported codec: %q", codec)
}

func (u *Unserializer) unpackSet(seq []any) (any, error) {
	items, err := u.unpackItems(seq[1:])
	if err != nil {
		return nil, err
	}
	set := make(Set, len(items))
	for _, item := range items {
		if item != nil && !reflect.TypeOf(item).Comparable() {
			return nil, errors.New(errors.ErrCodeMalformedTag, "set member of type %T is not comparable", item)
		}
		set[item] = struct{}{}
	}
	return set, nil
}

func (u *Unserializer) unpackEnum(seq []any) (any, error) {
	full, err := u.stringArg(seq, 2)
	if err != nil {
		return nil, err
	}
	dot := strings.LastIndex(full, ".")
	if dot <= 0 || dot == len(full)-1 {
		return nil, errors.New(errors.ErrCodeMalformedTag, "enum name %q is not Type.Member", full)
	}
	typeName, memberName := full[:dot], full[dot+1:]

	entry, err := u.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	if entry.Kind != registry.KindEnum {
		return nil, errors.New(errors.ErrCodeUnknownType, "%s is a registered %s, not an enum", typeName, entry.Kind)
	}
	member, ok := entry.Member(memberName)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownType, "enum %s has no member %q", typeName, memberName)
	}
	return member, nil
}

func (u *Unserializer) unpackType(seq []any) (any, error) {
	name, err := u.stringArg(seq, 2)
	if err != nil {
		return nil, err
	}
	entry, err := u.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return entry.Type, nil
}

func (u *Unserializer) unpackExternal(seq []any) (any, error) {
	if len(seq) < 2 {
		return nil, malformed(seq, 2)
	}
	id, err := u.unpackItems(seq[1:])
	if err != nil {
		return nil, err
	}
	if u.opts.externalizer != nil {
		return u.opts.externalizer.Restore(id)
	}
	return ExternalRef{ID: id}, nil
}

func (u *Unserializer) unpackReference(seq []any) (any, error) {
	if len(seq) != 3 {
		return nil, malformed(seq, 3)
	}
	id, err := refID(seq[1])
	if err != nil {
		return nil, err
	}
	if obj, ok := u.refs[id]; ok {
		return obj, nil
	}
	return u.build(id, seq[2])
}

func (u *Unserializer) unpackDereference(seq []any) (any, error) {
	if len(seq) != 2 {
		return nil, malformed(seq, 2)
	}
	id, err := refID(seq[1])
	if err != nil {
		return nil, err
	}
	if obj, ok := u.refs[id]; ok {
		return obj, nil
	}
	if payload, ok := u.pending[id]; ok {
		return u.build(id, payload)
	}
	return nil, errors.New(errors.ErrCodeUnresolvedReference, "reference %d is never defined", id)
}

// build reconstructs the payload of reference id and records the result.
func (u *Unserializer) build(id int, payload any) (any, error) {
	if u.building[id] {
		return nil, errors.New(errors.ErrCodeUnresolvedReference, "reference %d contains itself", id)
	}
	u.building[id] = true
	defer delete(u.building, id)

	if name, ok := snapshot.TypeName(payload); ok {
		doc, _ := snapshot.AsMapping(payload)
		return u.unpackInstance(name, doc, id)
	}
	obj, err := u.unpack(payload)
	if err != nil {
		return nil, err
	}
	u.refs[id] = obj
	return obj, nil
}

func (u *Unserializer) unpackFunction(seq []any) (any, error) {
	name, err := u.stringArg(seq, 2)
	if err != nil {
		return nil, err
	}
	return u.registry.ResolveFunc(name)
}
