package snapshot

// Sequence tags. Each one is only meaningful as the first element of a
// sequence.
const (
	TupleAtom       = "_tuple"
	BytesAtom       = "_bytes"
	EncodedAtom     = "_enc"
	SetAtom         = "_set"
	EnumAtom        = "_enum"
	TypeAtom        = "_type"
	ExternalAtom    = "_ext"
	ReferenceAtom   = "_ref"
	DereferenceAtom = "_deref"
	FunctionAtom    = "_function"
)

// Reserved mapping keys.
const (
	InstanceTypeKey  = "_type"
	InstanceStateKey = "_state"
	VersionKey       = "_version"
)

// Encodings.
const (
	// DefaultEncoding names the text encoding byte sequences are decoded with.
	DefaultEncoding = "UTF8"

	// BytesEncoding names the transport encoding of the _bytes payload.
	BytesEncoding = "BASE64"
)

var sequenceAtoms = map[string]struct{}{
	TupleAtom:       {},
	BytesAtom:       {},
	EncodedAtom:     {},
	SetAtom:         {},
	EnumAtom:        {},
	TypeAtom:        {},
	ExternalAtom:    {},
	ReferenceAtom:   {},
	DereferenceAtom: {},
	FunctionAtom:    {},
}

// IsAtom reports whether s is one of the reserved sequence tags.
func IsAtom(s string) bool {
	_, ok := sequenceAtoms[s]
	return ok
}

// IsReservedKey reports whether key is owned by the codec inside an
// instance record.
func IsReservedKey(key string) bool {
	return key == InstanceTypeKey || key == InstanceStateKey || key == VersionKey
}
