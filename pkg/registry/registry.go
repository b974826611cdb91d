// Package registry maps canonical names to the Go types, enum members and
// functions the codec may meet on the wire.
//
// The registry is written rarely (normally once, during startup) and read
// on every flatten and unflatten. All methods are safe for concurrent use.
//
//	reg := registry.New()
//	reg.MustRegister("test-doc", (*TestDoc)(nil))
//	reg.MustRegisterEnum("billing.Status", map[string]any{
//	    "Open":   StatusOpen,
//	    "Closed": StatusClosed,
//	})
package registry

import (
	"reflect"
	"sort"
	"sync"

	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/version"
)

// Snapshotter produces the state an instance is stored as. Mapping-shaped
// state must be a map[string]any; anything else is stored opaquely.
type Snapshotter interface {
	Snapshot() (any, error)
}

// Restorer populates a freshly allocated instance from its unflattened
// state.
type Restorer interface {
	Restore(state any) error
}

// Instance is the contract of every registered instance type.
type Instance interface {
	Snapshotter
	Restorer
}

// Defaulter is implemented by instance types that need field defaults
// applied before Restore runs. Fields absent from old stored data keep
// these values.
type Defaulter interface {
	SetDefaults()
}

// Kind tells what a registry entry describes.
type Kind int

// Entry kinds.
const (
	KindInstance Kind = iota + 1
	KindEnum
	KindType
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindEnum:
		return "enum"
	case KindType:
		return "type"
	}
	return "unknown"
}

// Entry is one registered name.
type Entry struct {
	Name string
	Kind Kind

	// Type is the pointer type for instances, the member type for enums
	// and the registered type itself for bare type references.
	Type reflect.Type

	// Chain is the version chain of an instance type; Versioned tells
	// whether the type implements version.Adapter at all.
	Chain     version.Chain
	Versioned bool

	members     map[string]any
	memberNames map[any]string
}

// New allocates a zero instance of an instance entry.
func (e *Entry) New() (Instance, error) {
	if e.Kind != KindInstance {
		return nil, errors.New(errors.ErrCodeUnknownType, "%s is a registered %s, not an instance type", e.Name, e.Kind)
	}
	return reflect.New(e.Type.Elem()).Interface().(Instance), nil
}

// Version returns the current version of an instance entry.
func (e *Entry) Version() int {
	if !e.Versioned {
		return version.DefaultVersion
	}
	return e.Chain.Version
}

// Member returns the enum member registered under name.
func (e *Entry) Member(name string) (any, bool) {
	v, ok := e.members[name]
	return v, ok
}

// MemberName returns the name an enum value was registered under.
func (e *Entry) MemberName(v any) (string, bool) {
	name, ok := e.memberNames[v]
	return name, ok
}

// Registry is a name-keyed table of types and functions.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*Entry
	byType    map[reflect.Type]*Entry
	funcs     map[string]reflect.Value
	funcNames map[uintptr]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName:    make(map[string]*Entry),
		byType:    make(map[reflect.Type]*Entry),
		funcs:     make(map[string]reflect.Value),
		funcNames: make(map[uintptr]string),
	}
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

var (
	instanceType = reflect.TypeOf((*Instance)(nil)).Elem()
	adapterType  = reflect.TypeOf((*version.Adapter)(nil)).Elem()
)

// Register adds an instance type under name. proto is a pointer to the
// struct type, typically a typed nil such as (*Invoice)(nil). Types that
// implement version.Adapter have their chain checked for gaps here.
func (r *Registry) Register(name string, proto any) error {
	if err := errors.ValidateTypeName(name); err != nil {
		return err
	}
	t := reflect.TypeOf(proto)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return errors.New(errors.ErrCodeInvalidRegistration, "%s: prototype must be a pointer to a struct, got %T", name, proto)
	}
	if !t.Implements(instanceType) {
		return errors.New(errors.ErrCodeInvalidRegistration, "%s: %s does not implement Snapshot and Restore", name, t)
	}

	entry := &Entry{Name: name, Kind: KindInstance, Type: t}
	if t.Implements(adapterType) {
		adapter := reflect.New(t.Elem()).Interface().(version.Adapter)
		entry.Chain = adapter.Migrations()
		entry.Versioned = true
		if err := version.Validate(name, entry.Chain); err != nil {
			return err
		}
	}
	return r.add(entry)
}

// RegisterEnum adds an enum type under name. All members must share one
// comparable type.
func (r *Registry) RegisterEnum(name string, members map[string]any) error {
	if err := errors.ValidateTypeName(name); err != nil {
		return err
	}
	if len(members) == 0 {
		return errors.New(errors.ErrCodeInvalidRegistration, "%s: enum has no members", name)
	}

	entry := &Entry{
		Name:        name,
		Kind:        KindEnum,
		members:     make(map[string]any, len(members)),
		memberNames: make(map[any]string, len(members)),
	}
	for _, member := range sortedNames(members) {
		v := members[member]
		t := reflect.TypeOf(v)
		if t == nil || !t.Comparable() {
			return errors.New(errors.ErrCodeInvalidRegistration, "%s.%s: enum members must be comparable values", name, member)
		}
		if entry.Type == nil {
			entry.Type = t
		} else if entry.Type != t {
			return errors.New(errors.ErrCodeInvalidRegistration, "%s.%s: member type %s differs from %s", name, member, t, entry.Type)
		}
		if prev, dup := entry.memberNames[v]; dup {
			return errors.New(errors.ErrCodeInvalidRegistration, "%s: members %s and %s share a value", name, prev, member)
		}
		entry.members[member] = v
		entry.memberNames[v] = member
	}
	return r.add(entry)
}

// RegisterType adds a bare type so reflect.Type values can be stored.
func (r *Registry) RegisterType(name string, t reflect.Type) error {
	if err := errors.ValidateTypeName(name); err != nil {
		return err
	}
	if t == nil {
		return errors.New(errors.ErrCodeInvalidRegistration, "%s: nil type", name)
	}
	return r.add(&Entry{Name: name, Kind: KindType, Type: t})
}

// RegisterFunc adds a top-level function under name.
func (r *Registry) RegisterFunc(name string, fn any) error {
	if err := errors.ValidateTypeName(name); err != nil {
		return err
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return errors.New(errors.ErrCodeInvalidRegistration, "%s: expected a function, got %T", name, fn)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.funcs[name]; dup {
		return errors.New(errors.ErrCodeInvalidRegistration, "function %q already registered", name)
	}
	if prev, dup := r.funcNames[v.Pointer()]; dup {
		return errors.New(errors.ErrCodeInvalidRegistration, "function %q already registered as %q", name, prev)
	}
	r.funcs[name] = v
	r.funcNames[v.Pointer()] = name
	return nil
}

func (r *Registry) add(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[e.Name]; dup {
		return errors.New(errors.ErrCodeInvalidRegistration, "type name %q already registered", e.Name)
	}
	if prev, dup := r.byType[e.Type]; dup {
		return errors.New(errors.ErrCodeInvalidRegistration, "%s already registered as %q", e.Type, prev.Name)
	}
	r.byName[e.Name] = e
	r.byType[e.Type] = e
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, proto any) {
	if err := r.Register(name, proto); err != nil {
		panic(err)
	}
}

// MustRegisterEnum is like RegisterEnum but panics on error.
func (r *Registry) MustRegisterEnum(name string, members map[string]any) {
	if err := r.RegisterEnum(name, members); err != nil {
		panic(err)
	}
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownType, "unknown type %q", name)
	}
	return e, nil
}

// EntryOf returns the entry registered for t. Instance types are found
// by either their pointer or their struct type.
func (r *Registry) EntryOf(t reflect.Type) (*Entry, bool) {
	if t == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byType[t]; ok {
		return e, true
	}
	if e, ok := r.byType[reflect.PointerTo(t)]; ok && e.Kind == KindInstance {
		return e, true
	}
	return nil, false
}

// NameOf returns the canonical name registered for t.
func (r *Registry) NameOf(t reflect.Type) (string, bool) {
	e, ok := r.EntryOf(t)
	if !ok {
		return "", false
	}
	return e.Name, true
}

// ResolveFunc returns the function registered under name.
func (r *Registry) ResolveFunc(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.funcs[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownType, "unknown function %q", name)
	}
	return v.Interface(), nil
}

// FuncName returns the name fn was registered under.
func (r *Registry) FuncName(fn any) (string, bool) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.funcNames[v.Pointer()]
	return name, ok
}

// Names returns every registered type name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the registry. Entries themselves
// are immutable and shared.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := New()
	for k, v := range r.byName {
		c.byName[k] = v
	}
	for k, v := range r.byType {
		c.byType[k] = v
	}
	for k, v := range r.funcs {
		c.funcs[k] = v
	}
	for k, v := range r.funcNames {
		c.funcNames[k] = v
	}
	return c
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
