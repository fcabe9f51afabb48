package ctf

import (
	"fmt"
	"iter"
	"strings"

	"github.com/skdltmxn/ctf-go/internal/format"
	"github.com/skdltmxn/ctf-go/internal/idspace"
	"github.com/skdltmxn/ctf-go/internal/stream"
)

// rawRecord is a committed type record: the three header words plus a view
// of the variable data.
type rawRecord struct {
	name      uint32
	info      uint32
	sizeOrRef uint32
	vdata     []byte
}

// recordAt returns the committed record at a local index. The index must
// be in range; callers go through fetch for validation.
func (c *Container) recordAt(index uint32) rawRecord {
	sect := c.body[c.header.TypeOff:c.header.StrOff]
	off := c.txlate[index]

	rec := rawRecord{
		name:      le32(sect[off:]),
		info:      le32(sect[off+4:]),
		sizeOrRef: le32(sect[off+8:]),
	}
	vb, _ := c.ops.VBytes(c.ops.Kind(rec.info), c.ops.Vlen(rec.info))
	rec.vdata = sect[off+format.RecordSize : int(off)+format.RecordSize+vb]
	return rec
}

// strptr resolves a name reference against the internal or external string
// table.
func (c *Container) strptr(ref uint32) (string, error) {
	tab := c.strs[format.NameTable(ref)]
	if tab == nil {
		return "", c.fail(ErrBadString)
	}
	s, err := stream.NewReader(tab).CStringAt(int(format.NameOffset(ref)))
	if err != nil {
		return "", c.fail(fmt.Errorf("%w: offset %d", ErrBadString, format.NameOffset(ref)))
	}
	return s, nil
}

// typeRef is the unified view of a type the query layer works against:
// either a committed record or a pending dynamic definition, together with
// the container that owns it.
type typeRef struct {
	owner *Container
	kind  format.Kind
	root  bool
	name  string
	size  uint32 // byte size, referenced TypeID, or forward kind hint
	rec   *rawRecord
	dtd   *dtd
}

// fetch resolves a global type ID to its defining record, walking to the
// parent container for parent-range IDs and consulting the dynamic log for
// IDs past the committed range.
func (c *Container) fetch(id TypeID) (*typeRef, error) {
	// A closed parent still answers while children reference it; only a
	// torn-down container has lost its buffers.
	if c.body == nil {
		return nil, c.fail(ErrClosed)
	}

	g := uint32(id)
	if g == 0 || idspace.Index(g) == 0 {
		return nil, c.fail(fmt.Errorf("%w: %#x", ErrBadID, g))
	}

	if !c.space.Local(g) {
		if idspace.IsParent(g) && c.space.Child() {
			if c.parent == nil {
				return nil, c.fail(ErrNoParent)
			}
			return c.parent.fetch(id)
		}
		return nil, c.fail(fmt.Errorf("%w: %#x", ErrBadID, g))
	}

	index := idspace.Index(g)
	if index <= c.space.TypeMax() {
		rec := c.recordAt(index)
		name, err := c.strptr(rec.name)
		if err != nil {
			return nil, err
		}
		return &typeRef{
			owner: c,
			kind:  c.ops.Kind(rec.info),
			root:  c.ops.IsRoot(rec.info),
			name:  name,
			size:  rec.sizeOrRef,
			rec:   &rec,
		}, nil
	}

	if c.dtdByID != nil {
		if d, ok := c.dtdByID[id]; ok {
			return &typeRef{
				owner: c,
				kind:  d.kind,
				root:  d.root,
				name:  d.name,
				size:  d.size,
				dtd:   d,
			}, nil
		}
	}
	return nil, c.fail(fmt.Errorf("%w: %#x", ErrBadID, g))
}

// LookupTypeByName finds a type by qualified name. The namespace is chosen
// by prefix: "struct foo", "union foo", and "enum foo" are looked up in
// their own namespaces; anything else in the plain-name namespace.
// Trailing "*" qualifiers resolve through the pointer translation table,
// so "int *" finds the pointer-to-int type if the container defines one.
//
// Pending dynamic types are found by the most recent definition of the
// name; committed types through the fixed index.
func (c *Container) LookupTypeByName(name string) (TypeID, error) {
	if c.closed {
		return 0, c.fail(ErrClosed)
	}
	base := strings.TrimSpace(name)

	stars := 0
	for strings.HasSuffix(base, "*") {
		stars++
		base = strings.TrimSpace(strings.TrimSuffix(base, "*"))
	}

	id, err := c.lookupBase(base)
	if err != nil {
		return 0, err
	}
	for ; stars > 0; stars-- {
		id, err = c.pointerTo(id)
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (c *Container) lookupBase(name string) (TypeID, error) {
	// The dynamic by-name index is keyed by qualified name and holds the
	// most recent pending definition.
	if d, ok := c.dynamicByName(name); ok {
		return d.id, nil
	}

	for _, l := range c.lookups {
		if l.prefix != "" {
			rest, ok := strings.CutPrefix(name, l.prefix+" ")
			if !ok {
				continue
			}
			if id, found := l.table.Lookup(strings.TrimSpace(rest)); found {
				return TypeID(id), nil
			}
			break
		}
		if id, found := l.table.Lookup(name); found {
			return TypeID(id), nil
		}
		break
	}

	if c.parent != nil {
		return c.parent.LookupTypeByName(name)
	}
	return 0, c.fail(fmt.Errorf("%w: %q", ErrNotFound, name))
}

func (c *Container) dynamicByName(name string) (*dtd, bool) {
	if c.dtdByName == nil {
		return nil, false
	}
	d, ok := c.dtdByName[name]
	return d, ok
}

// pointerTo finds the committed pointer type whose referent is id, looking
// first locally and then in the parent.
func (c *Container) pointerTo(id TypeID) (TypeID, error) {
	resolved, err := c.Resolve(id)
	if err != nil {
		return 0, err
	}

	for fp := c; fp != nil; fp = fp.parent {
		if !fp.space.Local(uint32(resolved)) {
			continue
		}
		ri := idspace.Index(uint32(resolved))
		if int(ri) < len(fp.ptrtab) && fp.ptrtab[ri] != 0 {
			return fp.id(fp.ptrtab[ri]), nil
		}
	}
	return 0, c.fail(fmt.Errorf("%w: no pointer to %#x", ErrNotFound, uint32(id)))
}

// Types iterates the committed types of this container in ID order.
// Pending dynamic types are not included until Update folds them in.
func (c *Container) Types() iter.Seq[TypeID] {
	return func(yield func(TypeID) bool) {
		for index := uint32(1); index <= c.space.TypeMax(); index++ {
			if !yield(c.id(index)) {
				return
			}
		}
	}
}
