// Package format defines the serialised layout of a CTF container and the
// version-specific decoding of its type records.
//
// A container buffer is a fixed-size header followed by three sections:
// variables, type records, and the string table. Section offsets in the
// header are relative to the end of the header, so the body may be
// compressed independently of it.
package format

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/ctf-go/internal/stream"
)

// Container magic and version constants.
const (
	Magic uint16 = 0xc7f2

	VersionV1 uint8 = 1
	VersionV2 uint8 = 2

	// CurrentVersion is the version written by serialisation.
	CurrentVersion = VersionV2
)

// Header flags.
const (
	// FlagCompress marks the body (everything past the header) as
	// zlib-compressed.
	FlagCompress uint8 = 0x01

	// FlagChild marks a container whose type IDs live in the child half of
	// the identifier space.
	FlagChild uint8 = 0x02
)

// HeaderSize is the size of the fixed container header in bytes.
const HeaderSize = 24

// Errors.
var (
	ErrBadMagic           = errors.New("format: bad container magic")
	ErrUnsupportedVersion = errors.New("format: unsupported container version")
	ErrTruncated          = errors.New("format: truncated container")
	ErrBadRecord          = errors.New("format: invalid type record")
)

// Header is the fixed container header.
type Header struct {
	Magic      uint16
	Version    uint8
	Flags      uint8
	ParentName uint32 // string table offset of parent name, 0 if none
	VarOff     uint32 // offset of variable section
	TypeOff    uint32 // offset of type section
	StrOff     uint32 // offset of string table
	StrLen     uint32 // length of string table
}

// ParseHeader decodes and validates a container header.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncated
	}

	r := stream.NewReader(data)
	h := &Header{}

	h.Magic, _ = r.ReadU16()
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}

	h.Version, _ = r.ReadU8()
	h.Flags, _ = r.ReadU8()
	h.ParentName, _ = r.ReadU32()
	h.VarOff, _ = r.ReadU32()
	h.TypeOff, _ = r.ReadU32()
	h.StrOff, _ = r.ReadU32()
	h.StrLen, _ = r.ReadU32()

	if h.VarOff > h.TypeOff || h.TypeOff > h.StrOff {
		return nil, fmt.Errorf("%w: section offsets out of order", ErrTruncated)
	}
	return h, nil
}

// Encode appends the header to w.
func (h *Header) Encode(w *stream.Writer) {
	w.WriteU16(h.Magic)
	w.WriteU8(h.Version)
	w.WriteU8(h.Flags)
	w.WriteU32(h.ParentName)
	w.WriteU32(h.VarOff)
	w.WriteU32(h.TypeOff)
	w.WriteU32(h.StrOff)
	w.WriteU32(h.StrLen)
}

// Kind identifies the category of a type record.
type Kind uint32

const (
	KindUnknown Kind = iota
	KindInteger
	KindFloat
	KindPointer
	KindArray
	KindFunction
	KindStruct
	KindUnion
	KindEnum
	KindForward
	KindTypedef
	KindVolatile
	KindConst
	KindRestrict
	KindSlice

	KindMax = KindSlice
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindPointer:
		return "pointer"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindForward:
		return "forward"
	case KindTypedef:
		return "typedef"
	case KindVolatile:
		return "volatile"
	case KindConst:
		return "const"
	case KindRestrict:
		return "restrict"
	case KindSlice:
		return "slice"
	default:
		return "unknown"
	}
}

// RecordSize is the size of a type record header: name reference, info
// word, and size-or-reference word. Variable data follows.
const RecordSize = 12

// Record is a decoded type record header.
type Record struct {
	Name      uint32 // string table reference
	Info      uint32 // version-specific kind/root/vlen packing
	SizeOrRef uint32 // byte size, referenced type ID, or forward kind
}

// String table references use the high bit to select the table: 0 for the
// container's own strings, 1 for a caller-supplied external table.
const (
	strTabShift = 31
	strOffMask  = (uint32(1) << strTabShift) - 1
)

// NameTable returns which string table a name reference selects.
func NameTable(ref uint32) int {
	return int(ref >> strTabShift)
}

// NameOffset returns the table offset of a name reference.
func NameOffset(ref uint32) uint32 {
	return ref & strOffMask
}

// NameRef builds a name reference for the given table and offset.
func NameRef(table int, offset uint32) uint32 {
	return uint32(table)<<strTabShift | (offset & strOffMask)
}

// Member is the serialised form of a struct or union member: name
// reference, member type ID, and bit offset. 12 bytes each.
type Member struct {
	Name   uint32
	Type   uint32
	Offset uint32
}

// MemberSize is the serialised size of a Member.
const MemberSize = 12

// Enumerator is the serialised form of an enum constant. 8 bytes each.
type Enumerator struct {
	Name  uint32
	Value int32
}

// EnumeratorSize is the serialised size of an Enumerator.
const EnumeratorSize = 8

// Array is the serialised payload of an array type.
type Array struct {
	Contents uint32 // element type ID
	Index    uint32 // index type ID
	Count    uint32 // number of elements
}

// ArraySize is the serialised size of an Array payload.
const ArraySize = 12

// Slice is the serialised payload of a slice (bit-field view) type.
type Slice struct {
	Type   uint32 // underlying integral type ID
	Offset uint16 // bit offset
	Bits   uint16 // bit width
}

// SliceSize is the serialised size of a Slice payload.
const SliceSize = 8

// Integer and float encodings share one 32-bit word:
// format in the top byte, bit offset in the next, bit width in the low 16.
const (
	encFormatShift = 24
	encOffsetShift = 16
	encOffsetMask  = 0xff
	encBitsMask    = 0xffff
)

// EncodeEncoding packs an encoding word.
func EncodeEncoding(format, offset, bits uint32) uint32 {
	return format<<encFormatShift |
		(offset&encOffsetMask)<<encOffsetShift |
		bits&encBitsMask
}

// DecodeEncoding unpacks an encoding word.
func DecodeEncoding(word uint32) (format, offset, bits uint32) {
	return word >> encFormatShift,
		word >> encOffsetShift & encOffsetMask,
		word & encBitsMask
}
