package ctf

import (
	"fmt"

	"github.com/skdltmxn/ctf-go/internal/format"
	"github.com/skdltmxn/ctf-go/internal/stream"
)

// Kind identifies the category of a type.
type Kind uint32

const (
	KindUnknown  Kind = Kind(format.KindUnknown)
	KindInteger  Kind = Kind(format.KindInteger)
	KindFloat    Kind = Kind(format.KindFloat)
	KindPointer  Kind = Kind(format.KindPointer)
	KindArray    Kind = Kind(format.KindArray)
	KindFunction Kind = Kind(format.KindFunction)
	KindStruct   Kind = Kind(format.KindStruct)
	KindUnion    Kind = Kind(format.KindUnion)
	KindEnum     Kind = Kind(format.KindEnum)
	KindForward  Kind = Kind(format.KindForward)
	KindTypedef  Kind = Kind(format.KindTypedef)
	KindVolatile Kind = Kind(format.KindVolatile)
	KindConst    Kind = Kind(format.KindConst)
	KindRestrict Kind = Kind(format.KindRestrict)
	KindSlice    Kind = Kind(format.KindSlice)
)

func (k Kind) String() string {
	return format.Kind(k).String()
}

// Encoding describes how an integer or float type is represented.
type Encoding struct {
	Format uint32 // IntSigned..IntBool flags, or a Float* value
	Offset uint32 // bit offset within the containing word
	Bits   uint32 // bit width
}

// Integer format flags.
const (
	IntSigned  uint32 = 1 << 0
	IntChar    uint32 = 1 << 1
	IntBool    uint32 = 1 << 2
	IntVarArgs uint32 = 1 << 3
)

// Float formats.
const (
	FloatSingle     uint32 = 1
	FloatDouble     uint32 = 2
	FloatLongDouble uint32 = 3
	FloatComplex    uint32 = 4
)

// Member describes one struct or union member.
type Member struct {
	Name   string
	Type   TypeID
	Offset uint64 // bit offset within the containing type
}

// Enumerator describes one enum constant.
type Enumerator struct {
	Name  string
	Value int64
}

// ArrayInfo describes an array type.
type ArrayInfo struct {
	Contents TypeID // element type
	Index    TypeID // index type
	Count    uint32 // number of elements
}

// SliceInfo describes a slice type: a bit-field view of an integral type.
type SliceInfo struct {
	Type   TypeID
	Offset uint32 // bit offset
	Bits   uint32 // bit width
}

// FuncInfo describes a function type.
type FuncInfo struct {
	Return TypeID
	Args   []TypeID
}

// Kind returns the kind of a type.
func (c *Container) Kind(id TypeID) (Kind, error) {
	tr, err := c.fetch(id)
	if err != nil {
		return KindUnknown, err
	}
	return Kind(tr.kind), nil
}

// TypeName returns a type's raw name, which may be empty for anonymous
// types.
func (c *Container) TypeName(id TypeID) (string, error) {
	tr, err := c.fetch(id)
	if err != nil {
		return "", err
	}
	return tr.name, nil
}

// maxResolveDepth bounds reference chain walks so a corrupt cycle fails
// instead of spinning.
const maxResolveDepth = 512

// Resolve strips typedefs and qualifiers until it reaches a type that is
// neither, and returns that type's ID.
func (c *Container) Resolve(id TypeID) (TypeID, error) {
	for depth := 0; depth < maxResolveDepth; depth++ {
		tr, err := c.fetch(id)
		if err != nil {
			return 0, err
		}
		switch tr.kind {
		case format.KindTypedef, format.KindVolatile, format.KindConst, format.KindRestrict:
			id = TypeID(tr.size)
		default:
			return id, nil
		}
	}
	return 0, c.fail(fmt.Errorf("%w: reference cycle at %#x", ErrCorrupt, uint32(id)))
}

// Reference returns the type a pointer, typedef, qualifier, or slice
// refers to.
func (c *Container) Reference(id TypeID) (TypeID, error) {
	tr, err := c.fetch(id)
	if err != nil {
		return 0, err
	}
	switch tr.kind {
	case format.KindPointer, format.KindTypedef, format.KindVolatile,
		format.KindConst, format.KindRestrict:
		return TypeID(tr.size), nil
	case format.KindSlice:
		si, err := c.sliceInfo(tr)
		if err != nil {
			return 0, err
		}
		return si.Type, nil
	default:
		return 0, c.fail(fmt.Errorf("%w: %s has no referent", ErrKindMismatch, tr.kind))
	}
}

// Size returns a type's size in bytes. Typedefs and qualifiers are
// resolved first; pointer size comes from the data model.
func (c *Container) Size(id TypeID) (uint64, error) {
	rid, err := c.Resolve(id)
	if err != nil {
		return 0, err
	}
	tr, err := c.fetch(rid)
	if err != nil {
		return 0, err
	}

	switch tr.kind {
	case format.KindPointer:
		return uint64(c.model.PointerSize), nil
	case format.KindArray:
		ai, err := c.arrayInfo(tr)
		if err != nil {
			return 0, err
		}
		elem, err := c.Size(ai.Contents)
		if err != nil {
			return 0, err
		}
		return elem * uint64(ai.Count), nil
	case format.KindSlice:
		si, err := c.sliceInfo(tr)
		if err != nil {
			return 0, err
		}
		return c.Size(si.Type)
	case format.KindForward, format.KindFunction:
		return 0, nil
	default:
		return uint64(tr.size), nil
	}
}

// Encoding returns the encoding of an integer, float, or slice type. For a
// slice the underlying encoding is narrowed to the slice's bit window.
func (c *Container) Encoding(id TypeID) (Encoding, error) {
	rid, err := c.Resolve(id)
	if err != nil {
		return Encoding{}, err
	}
	tr, err := c.fetch(rid)
	if err != nil {
		return Encoding{}, err
	}

	switch tr.kind {
	case format.KindInteger, format.KindFloat:
		var word uint32
		if tr.dtd != nil {
			word = format.EncodeEncoding(tr.dtd.enc.Format, tr.dtd.enc.Offset, tr.dtd.enc.Bits)
		} else {
			word = le32(tr.rec.vdata)
		}
		f, off, bits := format.DecodeEncoding(word)
		return Encoding{Format: f, Offset: off, Bits: bits}, nil
	case format.KindSlice:
		si, err := c.sliceInfo(tr)
		if err != nil {
			return Encoding{}, err
		}
		under, err := c.Encoding(si.Type)
		if err != nil {
			return Encoding{}, err
		}
		under.Offset = si.Offset
		under.Bits = si.Bits
		return under, nil
	default:
		return Encoding{}, c.fail(fmt.Errorf("%w: %s has no encoding", ErrKindMismatch, tr.kind))
	}
}

// ArrayInfo returns the element type, index type, and element count of an
// array type.
func (c *Container) ArrayInfo(id TypeID) (ArrayInfo, error) {
	rid, err := c.Resolve(id)
	if err != nil {
		return ArrayInfo{}, err
	}
	tr, err := c.fetch(rid)
	if err != nil {
		return ArrayInfo{}, err
	}
	if tr.kind != format.KindArray {
		return ArrayInfo{}, c.fail(fmt.Errorf("%w: %s is not an array", ErrKindMismatch, tr.kind))
	}
	return c.arrayInfo(tr)
}

func (c *Container) arrayInfo(tr *typeRef) (ArrayInfo, error) {
	if tr.dtd != nil {
		return *tr.dtd.arr, nil
	}
	r := stream.NewReader(tr.rec.vdata)
	contents, _ := r.ReadU32()
	index, _ := r.ReadU32()
	count, err := r.ReadU32()
	if err != nil {
		return ArrayInfo{}, c.fail(fmt.Errorf("%w: short array record", ErrCorrupt))
	}
	return ArrayInfo{Contents: TypeID(contents), Index: TypeID(index), Count: count}, nil
}

// SliceInfo returns the underlying type and bit window of a slice type.
func (c *Container) SliceInfo(id TypeID) (SliceInfo, error) {
	tr, err := c.fetch(id)
	if err != nil {
		return SliceInfo{}, err
	}
	if tr.kind != format.KindSlice {
		return SliceInfo{}, c.fail(fmt.Errorf("%w: %s is not a slice", ErrKindMismatch, tr.kind))
	}
	return c.sliceInfo(tr)
}

func (c *Container) sliceInfo(tr *typeRef) (SliceInfo, error) {
	if tr.dtd != nil {
		return *tr.dtd.slice, nil
	}
	r := stream.NewReader(tr.rec.vdata)
	typ, _ := r.ReadU32()
	off, _ := r.ReadU16()
	bits, err := r.ReadU16()
	if err != nil {
		return SliceInfo{}, c.fail(fmt.Errorf("%w: short slice record", ErrCorrupt))
	}
	return SliceInfo{Type: TypeID(typ), Offset: uint32(off), Bits: uint32(bits)}, nil
}

// FunctionInfo returns the return type and argument types of a function
// type.
func (c *Container) FunctionInfo(id TypeID) (FuncInfo, error) {
	rid, err := c.Resolve(id)
	if err != nil {
		return FuncInfo{}, err
	}
	tr, err := c.fetch(rid)
	if err != nil {
		return FuncInfo{}, err
	}
	if tr.kind != format.KindFunction {
		return FuncInfo{}, c.fail(fmt.Errorf("%w: %s is not a function", ErrKindMismatch, tr.kind))
	}

	if tr.dtd != nil {
		args := make([]TypeID, len(tr.dtd.argv))
		copy(args, tr.dtd.argv)
		return FuncInfo{Return: TypeID(tr.dtd.size), Args: args}, nil
	}

	r := stream.NewReader(tr.rec.vdata)
	args := make([]TypeID, 0, len(tr.rec.vdata)/4)
	for r.Remaining() >= 4 {
		a, _ := r.ReadU32()
		args = append(args, TypeID(a))
	}
	return FuncInfo{Return: TypeID(tr.size), Args: args}, nil
}

// Members returns the members of a struct or union type in declaration
// order.
func (c *Container) Members(id TypeID) ([]Member, error) {
	rid, err := c.Resolve(id)
	if err != nil {
		return nil, err
	}
	tr, err := c.fetch(rid)
	if err != nil {
		return nil, err
	}
	if tr.kind != format.KindStruct && tr.kind != format.KindUnion {
		return nil, c.fail(fmt.Errorf("%w: %s has no members", ErrKindMismatch, tr.kind))
	}

	if tr.dtd != nil {
		out := make([]Member, len(tr.dtd.members))
		copy(out, tr.dtd.members)
		return out, nil
	}

	r := stream.NewReader(tr.rec.vdata)
	out := make([]Member, 0, len(tr.rec.vdata)/format.MemberSize)
	for r.Remaining() >= format.MemberSize {
		nameRef, _ := r.ReadU32()
		mtype, _ := r.ReadU32()
		off, _ := r.ReadU32()
		name, err := tr.owner.strptr(nameRef)
		if err != nil {
			return nil, err
		}
		out = append(out, Member{Name: name, Type: TypeID(mtype), Offset: uint64(off)})
	}
	return out, nil
}

// MemberInfo returns the named member of a struct or union type.
func (c *Container) MemberInfo(id TypeID, name string) (Member, error) {
	members, err := c.Members(id)
	if err != nil {
		return Member{}, err
	}
	for _, m := range members {
		if m.Name == name {
			return m, nil
		}
	}
	return Member{}, c.fail(fmt.Errorf("%w: member %q", ErrNotFound, name))
}

// Enumerators returns the constants of an enum type in declaration order.
func (c *Container) Enumerators(id TypeID) ([]Enumerator, error) {
	rid, err := c.Resolve(id)
	if err != nil {
		return nil, err
	}
	tr, err := c.fetch(rid)
	if err != nil {
		return nil, err
	}
	if tr.kind != format.KindEnum {
		return nil, c.fail(fmt.Errorf("%w: %s is not an enum", ErrKindMismatch, tr.kind))
	}

	if tr.dtd != nil {
		out := make([]Enumerator, len(tr.dtd.enums))
		copy(out, tr.dtd.enums)
		return out, nil
	}

	r := stream.NewReader(tr.rec.vdata)
	out := make([]Enumerator, 0, len(tr.rec.vdata)/format.EnumeratorSize)
	for r.Remaining() >= format.EnumeratorSize {
		nameRef, _ := r.ReadU32()
		val, _ := r.ReadI32()
		name, err := tr.owner.strptr(nameRef)
		if err != nil {
			return nil, err
		}
		out = append(out, Enumerator{Name: name, Value: int64(val)})
	}
	return out, nil
}

// ForwardKind returns the hinted kind of a forward declaration.
func (c *Container) ForwardKind(id TypeID) (Kind, error) {
	tr, err := c.fetch(id)
	if err != nil {
		return KindUnknown, err
	}
	if tr.kind != format.KindForward {
		return KindUnknown, c.fail(fmt.Errorf("%w: %s is not a forward", ErrKindMismatch, tr.kind))
	}
	return Kind(tr.size), nil
}
