package snapshot

import (
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IsPassthrough reports whether v is a scalar the storage layer encodes
// natively. Such values cross the codec untouched in both directions.
func IsPassthrough(v any) bool {
	switch v.(type) {
	case time.Time, primitive.DateTime, primitive.Timestamp,
		primitive.ObjectID, primitive.Regex, primitive.Binary,
		primitive.JavaScript, primitive.CodeWithScope, primitive.Symbol,
		primitive.DBPointer, primitive.Decimal128,
		primitive.MinKey, primitive.MaxKey, primitive.Undefined, primitive.Null:
		return true
	}
	return false
}

// AsSequence returns the elements of a sequence node.
func AsSequence(node any) ([]any, bool) {
	switch n := node.(type) {
	case bson.A:
		return n, true
	case []any:
		return n, true
	}
	return nil, false
}

// AsMapping returns a mapping node as an ordered document. bson.D is
// returned as-is; unordered mappings are sorted by key so that every walk
// over the same data visits keys in the same order.
func AsMapping(node any) (bson.D, bool) {
	switch n := node.(type) {
	case bson.D:
		return n, true
	case bson.M:
		return sortedDoc(n), true
	case map[string]any:
		return sortedDoc(n), true
	}
	return nil, false
}

func sortedDoc(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return doc
}

// Lookup returns the value stored under key in any mapping node.
func Lookup(node any, key string) (any, bool) {
	switch n := node.(type) {
	case bson.D:
		for _, e := range n {
			if e.Key == key {
				return e.Value, true
			}
		}
	case bson.M:
		v, ok := n[key]
		return v, ok
	case map[string]any:
		v, ok := n[key]
		return v, ok
	}
	return nil, false
}

// Tag returns the atom tag of a sequence node. Only a known atom in the
// first position counts; anything else is a plain sequence.
func Tag(node any) (string, bool) {
	seq, ok := AsSequence(node)
	if !ok || len(seq) == 0 {
		return "", false
	}
	s, ok := seq[0].(string)
	if !ok || !IsAtom(s) {
		return "", false
	}
	return s, true
}

// IsInstance reports whether node is an instance record.
func IsInstance(node any) bool {
	v, ok := Lookup(node, InstanceTypeKey)
	if !ok {
		return false
	}
	_, ok = v.(string)
	return ok
}

// TypeName returns the canonical type name of an instance record.
func TypeName(node any) (string, bool) {
	v, ok := Lookup(node, InstanceTypeKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ToInt converts any integral number the BSON decoder may produce into an
// int. Floats are accepted when they hold an integral value, since some
// drivers store small integers as doubles.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
