package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/observability"
	"github.com/matzehuels/docsnap/pkg/registry"
	"github.com/matzehuels/docsnap/pkg/snapshot"
)

var emptyStructType = reflect.TypeOf(struct{}{})

// uuidSubtype is the BSON binary subtype of RFC 4122 UUIDs.
const uuidSubtype byte = 0x04

// identity names one object in the graph being flattened. The type is part
// of the key because a struct and its first field share an address.
type identity struct {
	typ reflect.Type
	ptr uintptr
}

// Serializer flattens live values into snapshots.
type Serializer struct {
	registry *registry.Registry
	opts     options

	// per-call state
	seen    map[identity]int
	states  map[identity]any
	refs    map[identity]int
	active  map[identity]bool
	nextRef int
}

// NewSerializer creates a serializer resolving names through reg. A nil
// reg uses registry.Default().
func NewSerializer(reg *registry.Registry, opts ...Option) *Serializer {
	return &Serializer{
		registry: registryOrDefault(reg),
		opts:     newOptions(opts),
	}
}

// Flatten converts v into its snapshot.
func (s *Serializer) Flatten(v any) (out any, err error) {
	start := time.Now()
	s.reset()
	defer func() {
		observability.Codec().OnFlatten(s.nextRef, time.Since(start), err)
		s.reset()
	}()

	if err := s.scan(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return s.flatten(v)
}

func (s *Serializer) reset() {
	s.seen = make(map[identity]int)
	s.states = make(map[identity]any)
	s.refs = make(map[identity]int)
	s.active = make(map[identity]bool)
	s.nextRef = 0
}

// instance returns the registry entry of a non-nil registered instance
// pointer.
func (s *Serializer) instance(rv reflect.Value) (*registry.Entry, bool) {
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, false
	}
	entry, ok := s.registry.EntryOf(rv.Type())
	if !ok || entry.Kind != registry.KindInstance || entry.Type != rv.Type() {
		return nil, false
	}
	return entry, true
}

// scan counts how often every instance pointer is reachable so that
// flatten knows which ones need reference tags. Each instance is expanded
// once; its state is kept for the flatten pass. Containers on the current
// path are tracked so a map or slice holding itself fails instead of
// recursing forever.
func (s *Serializer) scan(rv reflect.Value) error {
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	if entry, ok := s.instance(rv); ok {
		id := identity{typ: rv.Type(), ptr: rv.Pointer()}
		s.seen[id]++
		if s.seen[id] > 1 {
			return nil
		}
		state, err := rv.Interface().(registry.Snapshotter).Snapshot()
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "snapshot %s", entry.Name)
		}
		s.states[id] = state
		return s.scan(reflect.ValueOf(state))
	}

	// A registered struct passed by value has no identity of its own, but
	// the objects its state points to do.
	if entry, ok := s.registry.EntryOf(rv.Type()); ok && entry.Kind == registry.KindInstance && rv.Kind() == reflect.Struct {
		state, err := pointerTo(rv).Interface().(registry.Snapshotter).Snapshot()
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "snapshot %s", entry.Name)
		}
		return s.scan(reflect.ValueOf(state))
	}

	if rv.CanInterface() {
		if e, ok := rv.Interface().(External); ok && !(rv.Kind() == reflect.Pointer && rv.IsNil()) {
			return s.scan(reflect.ValueOf(e.ExternalID()))
		}
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() || (rv.Kind() == reflect.Slice && (rv.Len() == 0 || rv.Type().Elem().Kind() == reflect.Uint8)) {
			return nil
		}
		id := identity{typ: rv.Type(), ptr: rv.Pointer()}
		if s.active[id] {
			return errors.New(errors.ErrCodeUnsupportedValue, "cannot flatten %s: it contains itself", rv.Type())
		}
		s.active[id] = true
		defer delete(s.active, id)
	}

	switch rv.Kind() {
	case reflect.Pointer:
		return s.scan(rv.Elem())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := s.scan(rv.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if err := s.scan(iter.Key()); err != nil {
				return err
			}
			if err := s.scan(iter.Value()); err != nil {
				return err
			}
		}
	case reflect.Struct:
		if e, ok := rv.Interface().(primitive.E); ok {
			return s.scan(reflect.ValueOf(e.Value))
		}
	}
	return nil
}

// pointerTo returns a pointer to a copy of the struct value rv.
func pointerTo(rv reflect.Value) reflect.Value {
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	return ptr
}

func (s *Serializer) flatten(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if snapshot.IsPassthrough(v) {
		return v, nil
	}

	switch val := v.(type) {
	case string, bool, int, int8, int16, int32, int64, float32, float64:
		return v, nil
	case uuid.UUID:
		return primitive.Binary{Subtype: uuidSubtype, Data: val[:]}, nil
	case []byte:
		if val == nil {
			return nil, nil
		}
		return s.packBytes(val), nil
	case reflect.Type:
		return s.packType(val)
	case External:
		return s.packExternal(val)
	case Tuple:
		return s.packSequence(snapshot.TupleAtom, []any(val))
	case bson.D:
		return s.packDoc(val)
	}

	rv := reflect.ValueOf(v)

	if entry, ok := s.instance(rv); ok {
		return s.packShared(entry, rv)
	}
	if entry, ok := s.registry.EntryOf(rv.Type()); ok {
		switch entry.Kind {
		case registry.KindEnum:
			return s.packEnum(entry, v)
		case registry.KindInstance:
			if rv.Kind() == reflect.Struct {
				ptr := reflect.New(rv.Type())
				ptr.Elem().Set(rv)
				return s.packInstance(entry, ptr.Interface().(registry.Instance), nil)
			}
		}
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		if _, ok := v.(registry.Snapshotter); ok && rv.Elem().Kind() == reflect.Struct {
			return nil, errors.New(errors.ErrCodeUnknownType, "type %s is not registered", rv.Type())
		}
		return s.flatten(rv.Elem().Interface())

	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return nil, errors.New(errors.ErrCodeUnsupportedValue, "%v overflows a BSON integer", v)
		}
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil

	case reflect.Func:
		if rv.IsNil() {
			return nil, nil
		}
		name, ok := s.registry.FuncName(v)
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownType, "function %s is not registered", rv.Type())
		}
		return bson.A{snapshot.FunctionAtom, name}, nil

	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return s.packBytes(rv.Bytes()), nil
		}
		out := make(bson.A, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := s.flatten(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil

	case reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return s.packSequence(snapshot.TupleAtom, items)

	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem() == emptyStructType {
			return s.packSet(rv)
		}
		return s.packMap(rv)
	}

	return nil, errors.New(errors.ErrCodeUnsupportedValue, "cannot flatten value of type %T", v)
}

// packBytes stores b as text when it is valid UTF-8 and as base64 when it
// is not. This is the one place a decode failure is expected.
func (s *Serializer) packBytes(b []byte) any {
	if utf8.Valid(b) {
		if s.opts.forceUnicode {
			return string(b)
		}
		return bson.A{snapshot.EncodedAtom, snapshot.DefaultEncoding, string(b)}
	}
	return bson.A{snapshot.BytesAtom, base64.StdEncoding.EncodeToString(b)}
}

func (s *Serializer) packType(t reflect.Type) (any, error) {
	name, ok := s.registry.NameOf(t)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownType, "type %s is not registered", t)
	}
	return bson.A{snapshot.TypeAtom, name}, nil
}

func (s *Serializer) packEnum(entry *registry.Entry, v any) (any, error) {
	member, ok := entry.MemberName(v)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownType, "%v is not a member of %s", v, entry.Name)
	}
	return bson.A{snapshot.EnumAtom, entry.Name + "." + member}, nil
}

func (s *Serializer) packExternal(e External) (any, error) {
	return s.packSequence(snapshot.ExternalAtom, e.ExternalID())
}

func (s *Serializer) packSequence(tag string, items []any) (any, error) {
	out := make(bson.A, 0, len(items)+1)
	out = append(out, tag)
	for _, item := range items {
		flat, err := s.flatten(item)
		if err != nil {
			return nil, err
		}
		out = append(out, flat)
	}
	return out, nil
}

// packSet flattens set members and orders them by their rendering so the
// same set always produces the same snapshot.
func (s *Serializer) packSet(rv reflect.Value) (any, error) {
	type member struct {
		sortKey string
		value   any
	}
	members := make([]member, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		flat, err := s.flatten(iter.Key().Interface())
		if err != nil {
			return nil, err
		}
		members = append(members, member{sortKey: fmt.Sprintf("%T:%v", flat, flat), value: flat})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].sortKey < members[j].sortKey })

	out := make(bson.A, 0, len(members)+1)
	out = append(out, snapshot.SetAtom)
	for _, m := range members {
		out = append(out, m.value)
	}
	return out, nil
}

func (s *Serializer) packDoc(doc bson.D) (any, error) {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if err := checkKey(e.Key); err != nil {
			return nil, err
		}
		value, err := s.flatten(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: e.Key, Value: value})
	}
	return out, nil
}

func (s *Serializer) packMap(rv reflect.Value) (any, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return nil, errors.New(errors.ErrCodeNonStringKey, "cannot flatten %s: mapping keys must be strings", rv.Type())
	}
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		if err := checkKey(k); err != nil {
			return nil, err
		}
		value, err := s.flatten(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: k, Value: value})
	}
	return out, nil
}

// checkKey rejects keys that cannot be decoded as UTF-8 text.
func checkKey(key string) error {
	if !utf8.ValidString(key) {
		return errors.New(errors.ErrCodeNonStringKey, "mapping key %q is not valid %s text", key, snapshot.DefaultEncoding)
	}
	return nil
}

// packShared flattens an instance pointer, emitting reference tags for
// pointers the scan pass saw more than once.
func (s *Serializer) packShared(entry *registry.Entry, rv reflect.Value) (any, error) {
	id := identity{typ: rv.Type(), ptr: rv.Pointer()}
	inst := rv.Interface().(registry.Instance)
	state, scanned := s.states[id]

	if s.seen[id] <= 1 {
		if !scanned {
			return s.packInstance(entry, inst, nil)
		}
		return s.packInstance(entry, inst, state)
	}

	if ref, ok := s.refs[id]; ok {
		return bson.A{snapshot.DereferenceAtom, ref}, nil
	}
	s.nextRef++
	ref := s.nextRef
	s.refs[id] = ref

	record, err := s.packInstance(entry, inst, state)
	if err != nil {
		return nil, err
	}
	return bson.A{snapshot.ReferenceAtom, ref, record}, nil
}

// packInstance builds the instance record of inst. state is the snapshot
// taken by the scan pass, or nil to take it now.
func (s *Serializer) packInstance(entry *registry.Entry, inst registry.Instance, state any) (any, error) {
	if state == nil {
		var err error
		if state, err = inst.Snapshot(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "snapshot %s", entry.Name)
		}
	}

	fields, mappingShaped := snapshot.AsMapping(state)
	if !mappingShaped {
		if entry.Versioned {
			return nil, errors.New(errors.ErrCodeInvalidRegistration, "%s is versioned but its state is %T, not a mapping", entry.Name, state)
		}
		flat, err := s.flatten(state)
		if err != nil {
			return nil, err
		}
		return bson.D{
			{Key: snapshot.InstanceTypeKey, Value: entry.Name},
			{Key: snapshot.InstanceStateKey, Value: flat},
		}, nil
	}

	out := make(bson.D, 0, len(fields)+2)
	for _, e := range fields {
		switch e.Key {
		case snapshot.InstanceTypeKey, snapshot.InstanceStateKey:
			return nil, errors.New(errors.ErrCodeInvalidRegistration, "%s: state uses reserved key %q", entry.Name, e.Key)
		case snapshot.VersionKey:
			continue
		}
		if err := checkKey(e.Key); err != nil {
			return nil, err
		}
		value, err := s.flatten(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: e.Key, Value: value})
	}
	if entry.Versioned {
		out = append(out, bson.E{Key: snapshot.VersionKey, Value: entry.Version()})
	}
	out = append(out, bson.E{Key: snapshot.InstanceTypeKey, Value: entry.Name})
	return out, nil
}
