// Package codec converts between live Go values and snapshot trees.
//
// A Serializer flattens a value into a tree of bson.D, bson.A and scalars,
// tagging every shape BSON cannot express on its own (see package
// snapshot for the wire vocabulary). An Unserializer walks such a tree
// and rebuilds the values, migrating versioned instances to their current
// schema on the way.
//
// # Value Mapping
//
//	Go value                       snapshot
//	---------------------------------------------------------------
//	string, bool, numbers          as-is
//	time.Time, primitive.*         as-is (stored natively)
//	uuid.UUID                      primitive.Binary, subtype 4
//	nil []byte, slice or map       nil
//	[]byte                         text, ["_enc", ...] or ["_bytes", ...]
//	Tuple, [N]T                    ["_tuple", ...]
//	Set, map[K]struct{}            ["_set", ...]
//	[]T                            bson.A
//	bson.D                         bson.D, order kept
//	map[string]T                   bson.D, keys sorted
//	registered enum member         ["_enum", "Type.Member"]
//	reflect.Type (registered)      ["_type", "name"]
//	registered function            ["_function", "name"]
//	External                       ["_ext", idparts...]
//	*T, T registered instance      instance record
//
// Instance pointers seen more than once in one flatten (shared or cyclic
// graphs) are written as ["_ref", id, record] the first time and
// ["_deref", id] afterwards; the Unserializer hands back the same pointer
// for every sighting. A map or slice that contains itself cannot be
// flattened.
//
// Binary values come back as primitive.Binary whatever their subtype;
// package document turns subtype 4 back into uuid.UUID for fields
// declared with that type.
//
// # Concurrency
//
// Serializer and Unserializer keep per-call identity and reference tables
// and must not be used by two goroutines at once. Create one per goroutine
// or per call; package transform does this for storage hooks.
package codec
