// Package document maps struct fields to instance state and back.
//
// Registered types usually implement Snapshot and Restore by delegating
// here:
//
//	type TestDoc struct {
//	    document.Document
//	    Foo       string      `bson:"foo"`
//	    Bar       *SomeObject `bson:"bar"`
//	    CreatedAt time.Time   `bson:"created_at"`
//	}
//
//	func (d *TestDoc) Snapshot() (any, error)  { return document.Snapshot(d) }
//	func (d *TestDoc) Restore(state any) error { return document.Restore(d, state) }
//
// Field names follow the bson struct tag rules: the first tag element
// names the key (the lowercased field name when empty), "-" skips the
// field, "omitempty" drops zero values and "inline" (or an untagged
// embedded struct) flattens the embedded fields into the parent.
package document

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/matzehuels/docsnap/pkg/errors"
)

// IDKey is the primary key every stored document carries.
const IDKey = "_id"

// Document is embedded by types stored as top-level documents.
type Document struct {
	ID any `bson:"_id,omitempty"`
}

// DocumentID returns the stored primary key, or nil before the first insert.
func (d *Document) DocumentID() any { return d.ID }

// SetDocumentID records the primary key assigned by the database.
func (d *Document) SetDocumentID(id any) { d.ID = id }

// Identifiable is implemented by anything embedding Document.
type Identifiable interface {
	DocumentID() any
	SetDocumentID(id any)
}

type field struct {
	key       string
	index     []int
	omitEmpty bool
}

var fieldCache sync.Map // reflect.Type -> []field

func fieldsOf(t reflect.Type) []field {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]field)
	}
	fields := collectFields(t, nil)
	fieldCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, parent []int) []field {
	var fields []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("bson")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		index := append(append([]int(nil), parent...), i)

		inline := strings.Contains(","+opts+",", ",inline,") || (sf.Anonymous && tag == "")
		if inline && sf.Type.Kind() == reflect.Struct {
			fields = append(fields, collectFields(sf.Type, index)...)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		fields = append(fields, field{
			key:       name,
			index:     index,
			omitEmpty: strings.Contains(","+opts+",", ",omitempty,"),
		})
	}
	return fields
}

func structValue(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, errors.New(errors.ErrCodeInternal, "expected a non-nil struct pointer, got %T", v)
	}
	return rv.Elem(), nil
}

// Snapshot returns the fields of the struct v points to, keyed by their
// stored names. Values are returned as they are: nested objects, sets and
// times are left for the codec to flatten.
func Snapshot(v any) (map[string]any, error) {
	sv, err := structValue(v)
	if err != nil {
		return nil, err
	}
	state := make(map[string]any)
	for _, f := range fieldsOf(sv.Type()) {
		fv := sv.FieldByIndex(f.index)
		if f.omitEmpty && fv.IsZero() {
			continue
		}
		state[f.key] = fv.Interface()
	}
	return state, nil
}

// Restore assigns the entries of state to the fields of the struct v
// points to. Keys without a matching field are ignored and fields without
// a matching key keep their current value, so defaults set beforehand
// survive for data written by older schemas.
func Restore(v any, state any) error {
	sv, err := structValue(v)
	if err != nil {
		return err
	}
	m, ok := state.(map[string]any)
	if !ok {
		return errors.New(errors.ErrCodeInternal, "%T: expected mapping state, got %T", v, state)
	}
	for _, f := range fieldsOf(sv.Type()) {
		value, ok := m[f.key]
		if !ok {
			continue
		}
		if err := assign(sv.FieldByIndex(f.index), value); err != nil {
			return fmt.Errorf("%s.%s: %w", sv.Type(), f.key, err)
		}
	}
	return nil
}
