package format

import "fmt"

// Ops decodes the version-specific parts of a type record: the packing of
// the kind/root/vlen info word and the size of the variable data that
// follows a record. An Ops is selected once when a container is opened,
// based on the header version.
type Ops interface {
	// Kind extracts the type kind from an info word.
	Kind(info uint32) Kind

	// IsRoot reports whether the info word has the root-visible flag.
	IsRoot(info uint32) bool

	// Vlen extracts the variable-data element count from an info word.
	Vlen(info uint32) uint32

	// MaxVlen is the largest encodable element count.
	MaxVlen() uint32

	// MaxIndex is the largest encodable type index.
	MaxIndex() uint32

	// VBytes returns the size in bytes of the variable data for a record
	// of the given kind and element count.
	VBytes(kind Kind, vlen uint32) (int, error)
}

// OpsFor returns the record operations for a container version.
func OpsFor(version uint8) (Ops, error) {
	switch version {
	case VersionV1:
		return v1ops{}, nil
	case VersionV2:
		return v2ops{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// vbytes is shared by both versions: the record body layout did not change
// between them, only the info-word packing and limits did.
func vbytes(kind Kind, vlen uint32) (int, error) {
	switch kind {
	case KindInteger, KindFloat:
		return 4, nil
	case KindArray:
		return ArraySize, nil
	case KindSlice:
		return SliceSize, nil
	case KindFunction:
		return 4 * int(vlen), nil
	case KindStruct, KindUnion:
		return MemberSize * int(vlen), nil
	case KindEnum:
		return EnumeratorSize * int(vlen), nil
	case KindPointer, KindTypedef, KindVolatile, KindConst, KindRestrict,
		KindForward, KindUnknown:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: kind %d", ErrBadRecord, kind)
	}
}

// Version 2 packs the info word as kind:6 | root:1 | vlen:25.
const (
	v2KindShift = 26
	v2RootFlag  = uint32(1) << 25
	v2VlenMask  = v2RootFlag - 1
)

type v2ops struct{}

func (v2ops) Kind(info uint32) Kind   { return Kind(info >> v2KindShift) }
func (v2ops) IsRoot(info uint32) bool { return info&v2RootFlag != 0 }
func (v2ops) Vlen(info uint32) uint32 { return info & v2VlenMask }
func (v2ops) MaxVlen() uint32         { return v2VlenMask }
func (v2ops) MaxIndex() uint32        { return 1<<31 - 1 }
func (v2ops) VBytes(kind Kind, vlen uint32) (int, error) {
	return vbytes(kind, vlen)
}

// Info packs an info word in the current (v2) layout.
func Info(kind Kind, root bool, vlen uint32) uint32 {
	info := uint32(kind)<<v2KindShift | vlen&v2VlenMask
	if root {
		info |= v2RootFlag
	}
	return info
}

// Version 1 used a 16-bit info layout (kind:5 | root:1 | vlen:10) stored in
// the low half of the word. It is accepted read-only.
const (
	v1KindShift = 11
	v1KindMask  = 0x1f
	v1RootFlag  = uint32(1) << 10
	v1VlenMask  = v1RootFlag - 1
)

type v1ops struct{}

func (v1ops) Kind(info uint32) Kind   { return Kind(info >> v1KindShift & v1KindMask) }
func (v1ops) IsRoot(info uint32) bool { return info&v1RootFlag != 0 }
func (v1ops) Vlen(info uint32) uint32 { return info & v1VlenMask }
func (v1ops) MaxVlen() uint32         { return v1VlenMask }
func (v1ops) MaxIndex() uint32        { return 0xffff }
func (v1ops) VBytes(kind Kind, vlen uint32) (int, error) {
	return vbytes(kind, vlen)
}
