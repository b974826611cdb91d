// Package snapshot defines the wire vocabulary shared by the flattener and
// the unserializer.
//
// A snapshot is a tree built only from mappings, sequences and scalars that
// the BSON encoder understands natively. Anything that would otherwise be
// ambiguous in that tree (a tuple, a set, raw bytes, an enum member, a
// shared object) is marked with an atom tag: a reserved string placed as
// the first element of a sequence, or a reserved key in a mapping.
//
// # Wire Format
//
//	["_tuple", items...]          ordered fixed-size tuple
//	["_bytes", base64]            bytes that are not valid UTF-8
//	["_enc", codec, text]         explicitly encoded text
//	["_set", items...]            unordered collection
//	["_enum", "Type.Member"]      enum member
//	["_type", "name"]             bare type reference
//	["_ext", idparts...]          external entity pointer
//	["_ref", id, inner]           first sighting of a shared object
//	["_deref", id]                later sighting of a shared object
//	["_function", "name"]         function reference
//	{..., "_type": name}          instance with mapping-shaped state
//	{"_type": name, "_state": s}  instance with opaque state
//	{..., "_version": n}          schema version of an instance
//
// The codec owns the whole atom namespace: ordinary data must never produce
// a sequence whose first element is one of these strings.
//
// # Node Kinds
//
// Mappings are bson.D on output (insertion order preserved) and any of
// bson.D, bson.M or map[string]any on input. Sequences are bson.A on output
// and bson.A or []any on input. Scalars are strings, integers, floats,
// booleans, nil and the BSON pass-through kinds listed by IsPassthrough.
package snapshot
