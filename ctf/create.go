package ctf

import (
	"container/list"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/skdltmxn/ctf-go/internal/format"
	"github.com/skdltmxn/ctf-go/internal/idspace"
)

// Visibility controls whether an added type is entered into the name
// indices. Non-root types stay queryable by ID but invisible to name
// lookup.
type Visibility int

const (
	AddNonRoot Visibility = iota
	AddRoot
)

// dtd is a dynamic type definition: a pending type appended to the
// container's log and not yet folded by Update. Exactly one payload field
// is populated, selected by kind.
type dtd struct {
	elem     *list.Element
	id       TypeID
	name     string
	qname    string // qualified by-name key, "" if anonymous
	kind     format.Kind
	root     bool
	size     uint32 // byte size, referent TypeID, or forward kind hint
	snapshot uint64 // snapshot counter value at insertion

	members []Member     // struct, union
	enums   []Enumerator // enum
	arr     *ArrayInfo   // array
	enc     *Encoding    // integer, float
	argv    []TypeID     // function
	slice   *SliceInfo   // slice
}

// dvd is a dynamic variable definition.
type dvd struct {
	elem     *list.Element
	name     string
	typ      TypeID
	snapshot uint64
}

func qualifyName(kind format.Kind, hint format.Kind, name string) string {
	if name == "" {
		return ""
	}
	if kind == format.KindForward {
		kind = hint
	}
	switch kind {
	case format.KindStruct, format.KindUnion, format.KindEnum:
		return kind.String() + " " + name
	default:
		return name
	}
}

func (c *Container) writableCheck() error {
	if c.closed {
		return c.fail(ErrClosed)
	}
	if !c.writable {
		return c.fail(ErrReadOnly)
	}
	return nil
}

// addGeneric allocates the next ID, links the definition into the ordered
// log, and indexes it by ID and, if named, by qualified name. The by-name
// index always points at the most recent definition, so a producer may
// redefine a forward-declared name. A failed allocation leaves no trace.
func (c *Container) addGeneric(vis Visibility, kind format.Kind, name string, d *dtd) (TypeID, error) {
	if err := c.writableCheck(); err != nil {
		return 0, err
	}

	id, err := c.space.Next()
	if err != nil {
		return 0, c.fail(fmt.Errorf("%w: %v", ErrFull, err))
	}

	d.id = TypeID(id)
	d.kind = kind
	d.name = name
	d.root = vis == AddRoot
	d.qname = qualifyName(kind, format.Kind(d.size), name)
	d.snapshot = c.snapshots

	d.elem = c.dtds.PushBack(d)
	c.dtdByID[d.id] = d
	if d.root && d.qname != "" {
		c.dtdByName[d.qname] = d
	}
	c.dirty = true
	return d.id, nil
}

// checkRef validates a type reference used by a new definition.
func (c *Container) checkRef(ref TypeID) error {
	_, err := c.fetch(ref)
	return err
}

// AddInteger defines an integer type with the given encoding.
func (c *Container) AddInteger(vis Visibility, name string, enc Encoding) (TypeID, error) {
	return c.addGeneric(vis, format.KindInteger, name, &dtd{
		size: (enc.Bits + 7) / 8,
		enc:  &enc,
	})
}

// AddFloat defines a floating-point type with the given encoding.
func (c *Container) AddFloat(vis Visibility, name string, enc Encoding) (TypeID, error) {
	return c.addGeneric(vis, format.KindFloat, name, &dtd{
		size: (enc.Bits + 7) / 8,
		enc:  &enc,
	})
}

// AddPointer defines a pointer to ref.
func (c *Container) AddPointer(vis Visibility, ref TypeID) (TypeID, error) {
	if err := c.checkRef(ref); err != nil {
		return 0, err
	}
	return c.addGeneric(vis, format.KindPointer, "", &dtd{size: uint32(ref)})
}

// AddArray defines an array type.
func (c *Container) AddArray(vis Visibility, ai ArrayInfo) (TypeID, error) {
	if err := c.checkRef(ai.Contents); err != nil {
		return 0, err
	}
	if ai.Index != 0 {
		if err := c.checkRef(ai.Index); err != nil {
			return 0, err
		}
	}
	return c.addGeneric(vis, format.KindArray, "", &dtd{arr: &ai})
}

// AddFunction defines a function type with the given return and argument
// types.
func (c *Container) AddFunction(vis Visibility, ret TypeID, args []TypeID) (TypeID, error) {
	if err := c.checkRef(ret); err != nil {
		return 0, err
	}
	if uint32(len(args)) > c.ops.MaxVlen() {
		return 0, c.fail(fmt.Errorf("%w: %d arguments", ErrFull, len(args)))
	}
	for _, a := range args {
		if err := c.checkRef(a); err != nil {
			return 0, err
		}
	}
	argv := make([]TypeID, len(args))
	copy(argv, args)
	return c.addGeneric(vis, format.KindFunction, "", &dtd{
		size: uint32(ret),
		argv: argv,
	})
}

// AddStruct defines an empty struct type. Members are added with
// AddMember; anonymous structs are legal.
func (c *Container) AddStruct(vis Visibility, name string) (TypeID, error) {
	return c.addGeneric(vis, format.KindStruct, name, &dtd{})
}

// AddUnion defines an empty union type.
func (c *Container) AddUnion(vis Visibility, name string) (TypeID, error) {
	return c.addGeneric(vis, format.KindUnion, name, &dtd{})
}

// AddEnum defines an empty enum type. Constants are added with
// AddEnumerator.
func (c *Container) AddEnum(vis Visibility, name string) (TypeID, error) {
	return c.addGeneric(vis, format.KindEnum, name, &dtd{size: 4})
}

// AddForward defines a forward declaration hinted as a struct, union, or
// enum.
func (c *Container) AddForward(vis Visibility, name string, hint Kind) (TypeID, error) {
	switch format.Kind(hint) {
	case format.KindStruct, format.KindUnion, format.KindEnum:
	default:
		return 0, c.fail(fmt.Errorf("%w: forward hint %s", ErrKindMismatch, hint))
	}
	return c.addGeneric(vis, format.KindForward, name, &dtd{size: uint32(hint)})
}

// AddTypedef defines a named alias for ref.
func (c *Container) AddTypedef(vis Visibility, name string, ref TypeID) (TypeID, error) {
	if err := c.checkRef(ref); err != nil {
		return 0, err
	}
	return c.addGeneric(vis, format.KindTypedef, name, &dtd{size: uint32(ref)})
}

// AddVolatile defines a volatile-qualified view of ref.
func (c *Container) AddVolatile(vis Visibility, ref TypeID) (TypeID, error) {
	if err := c.checkRef(ref); err != nil {
		return 0, err
	}
	return c.addGeneric(vis, format.KindVolatile, "", &dtd{size: uint32(ref)})
}

// AddConst defines a const-qualified view of ref.
func (c *Container) AddConst(vis Visibility, ref TypeID) (TypeID, error) {
	if err := c.checkRef(ref); err != nil {
		return 0, err
	}
	return c.addGeneric(vis, format.KindConst, "", &dtd{size: uint32(ref)})
}

// AddRestrict defines a restrict-qualified view of ref.
func (c *Container) AddRestrict(vis Visibility, ref TypeID) (TypeID, error) {
	if err := c.checkRef(ref); err != nil {
		return 0, err
	}
	return c.addGeneric(vis, format.KindRestrict, "", &dtd{size: uint32(ref)})
}

// AddSlice defines a bit-field view of an integral type.
func (c *Container) AddSlice(vis Visibility, si SliceInfo) (TypeID, error) {
	rid, err := c.Resolve(si.Type)
	if err != nil {
		return 0, err
	}
	k, err := c.Kind(rid)
	if err != nil {
		return 0, err
	}
	switch format.Kind(k) {
	case format.KindInteger, format.KindFloat, format.KindEnum:
	default:
		return 0, c.fail(fmt.Errorf("%w: slice of %s", ErrKindMismatch, k))
	}
	if si.Offset > 0xff || si.Bits > 0xffff {
		return 0, c.fail(fmt.Errorf("%w: slice window out of range", ErrKindMismatch))
	}
	return c.addGeneric(vis, format.KindSlice, "", &dtd{slice: &si})
}

// AddMember appends a member at an explicit bit offset to a pending
// struct or union. Only types still in the dynamic log can gain members;
// definitions referenced by later additions are never mutated otherwise.
func (c *Container) AddMember(id TypeID, name string, mtype TypeID, bitOffset uint64) error {
	if err := c.writableCheck(); err != nil {
		return err
	}
	d, ok := c.dtdByID[id]
	if !ok {
		return c.fail(fmt.Errorf("%w: %#x is not a pending definition", ErrBadID, uint32(id)))
	}
	if d.kind != format.KindStruct && d.kind != format.KindUnion {
		return c.fail(fmt.Errorf("%w: %s cannot have members", ErrKindMismatch, d.kind))
	}
	// Member offsets are serialised as 32-bit words; a larger offset
	// cannot round-trip and must be rejected, not truncated.
	if bitOffset > math.MaxUint32 {
		return c.fail(fmt.Errorf("%w: member offset %d out of range", ErrKindMismatch, bitOffset))
	}
	if uint32(len(d.members)) >= c.ops.MaxVlen() {
		return c.fail(fmt.Errorf("%w: too many members", ErrFull))
	}
	if name != "" {
		for _, m := range d.members {
			if m.Name == name {
				return c.fail(fmt.Errorf("%w: member %q", ErrDuplicate, name))
			}
		}
	}
	if err := c.checkRef(mtype); err != nil {
		return err
	}

	d.members = append(d.members, Member{Name: name, Type: mtype, Offset: bitOffset})

	// Grow the aggregate size to cover the new member.
	msize, err := c.Size(mtype)
	if err == nil {
		end := (bitOffset + msize*8 + 7) / 8
		if uint32(end) > d.size {
			d.size = uint32(end)
		}
	}
	c.dirty = true
	return nil
}

// AddEnumerator appends a constant to a pending enum.
func (c *Container) AddEnumerator(id TypeID, name string, value int64) error {
	if err := c.writableCheck(); err != nil {
		return err
	}
	d, ok := c.dtdByID[id]
	if !ok {
		return c.fail(fmt.Errorf("%w: %#x is not a pending definition", ErrBadID, uint32(id)))
	}
	if d.kind != format.KindEnum {
		return c.fail(fmt.Errorf("%w: %s cannot have enumerators", ErrKindMismatch, d.kind))
	}
	if uint32(len(d.enums)) >= c.ops.MaxVlen() {
		return c.fail(fmt.Errorf("%w: too many enumerators", ErrFull))
	}
	for _, e := range d.enums {
		if e.Name == name {
			return c.fail(fmt.Errorf("%w: enumerator %q", ErrDuplicate, name))
		}
	}
	d.enums = append(d.enums, Enumerator{Name: name, Value: value})
	c.dirty = true
	return nil
}

// AddVariable records a variable of the given type. The definition stays
// pending until Update folds it into the sorted variable section.
func (c *Container) AddVariable(name string, typ TypeID) error {
	if err := c.writableCheck(); err != nil {
		return err
	}
	if _, ok := c.dvdByName[name]; ok {
		return c.fail(fmt.Errorf("%w: variable %q", ErrDuplicate, name))
	}
	if _, err := c.lookupStaticVariable(name); err == nil {
		return c.fail(fmt.Errorf("%w: variable %q", ErrDuplicate, name))
	}
	if err := c.checkRef(typ); err != nil {
		return err
	}

	v := &dvd{name: name, typ: typ, snapshot: c.snapshots}
	v.elem = c.dvds.PushBack(v)
	c.dvdByName[name] = v
	c.dirty = true
	return nil
}

// SnapshotID marks a point in the dynamic log that Rollback can return to.
type SnapshotID struct {
	snap uint64
}

// Snapshot advances the snapshot counter and returns its new value as a
// rollback target. Taking a snapshot does not alter any data.
func (c *Container) Snapshot() (SnapshotID, error) {
	if err := c.writableCheck(); err != nil {
		return SnapshotID{}, err
	}
	c.snapshots++
	return SnapshotID{snap: c.snapshots}, nil
}

// Rollback discards every pending definition inserted after the snapshot
// was taken. Definitions already folded by an Update cannot be rolled
// back: a target predating the last commit is rejected.
func (c *Container) Rollback(s SnapshotID) error {
	if err := c.writableCheck(); err != nil {
		return err
	}
	if s.snap == 0 || s.snap > c.snapshots {
		return c.fail(ErrBadSnapshot)
	}
	if s.snap < c.lastUpdate {
		return c.fail(ErrOverRollback)
	}

	removedTypes, removedVars := 0, 0

	for e := c.dtds.Back(); e != nil; {
		d := e.Value.(*dtd)
		if d.snapshot <= s.snap {
			break
		}
		prev := e.Prev()
		c.dtds.Remove(e)
		delete(c.dtdByID, d.id)
		if d.qname != "" && c.dtdByName[d.qname] == d {
			delete(c.dtdByName, d.qname)
		}
		removedTypes++
		e = prev
	}

	// The surviving tail bounds the assignable ID sequence; IDs above it
	// become invalid without renumbering the rest.
	last := c.space.TypeMax()
	if back := c.dtds.Back(); back != nil {
		last = idspace.Index(uint32(back.Value.(*dtd).id))
	}
	c.space.Truncate(last)

	for e := c.dvds.Back(); e != nil; {
		v := e.Value.(*dvd)
		if v.snapshot <= s.snap {
			break
		}
		prev := e.Prev()
		c.dvds.Remove(e)
		delete(c.dvdByName, v.name)
		removedVars++
		e = prev
	}

	c.log.Debug("ctf: rolled back",
		zap.Uint64("snapshot", s.snap),
		zap.Int("types_removed", removedTypes),
		zap.Int("vars_removed", removedVars))
	return nil
}

// PendingTypes returns the number of dynamic type definitions not yet
// folded by Update.
func (c *Container) PendingTypes() int {
	if c.dtds == nil {
		return 0
	}
	return c.dtds.Len()
}
