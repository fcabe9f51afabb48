package ctf

import (
	"fmt"
	"iter"
	"sort"

	"github.com/skdltmxn/ctf-go/internal/stream"
)

// Variable is a named data object and its type.
type Variable struct {
	Name string
	Type TypeID
}

const varEntrySize = 8

// parseVariables decodes the variable section. Entries are sorted by name
// at serialisation time, so lookups binary-search the slice.
func (c *Container) parseVariables() error {
	h := c.header
	if h.VarOff > h.TypeOff {
		return fmt.Errorf("%w: variable section exceeds type section", ErrCorrupt)
	}
	sect := c.body[h.VarOff:h.TypeOff]
	if len(sect)%varEntrySize != 0 {
		return fmt.Errorf("%w: truncated variable entry", ErrCorrupt)
	}

	r := stream.NewReader(sect)
	c.vars = make([]Variable, 0, len(sect)/varEntrySize)
	for r.Remaining() >= varEntrySize {
		ref, _ := r.ReadU32()
		typ, _ := r.ReadU32()
		name, err := c.strptr(ref)
		if err != nil {
			return err
		}
		c.vars = append(c.vars, Variable{Name: name, Type: TypeID(typ)})
	}
	return nil
}

func (c *Container) lookupStaticVariable(name string) (TypeID, error) {
	i := sort.Search(len(c.vars), func(i int) bool { return c.vars[i].Name >= name })
	if i < len(c.vars) && c.vars[i].Name == name {
		return c.vars[i].Type, nil
	}
	return 0, ErrNotFound
}

// LookupVariable returns the type of the named variable. Pending
// definitions are visible immediately; committed ones come from the sorted
// variable section. An unknown name falls through to the parent.
func (c *Container) LookupVariable(name string) (TypeID, error) {
	if c.closed {
		return 0, c.fail(ErrClosed)
	}
	if c.dvdByName != nil {
		if v, ok := c.dvdByName[name]; ok {
			return v.typ, nil
		}
	}
	if id, err := c.lookupStaticVariable(name); err == nil {
		return id, nil
	}
	if c.parent != nil {
		return c.parent.LookupVariable(name)
	}
	return 0, c.fail(fmt.Errorf("%w: variable %q", ErrNotFound, name))
}

// Variables iterates the committed variables in name order, then any
// pending definitions in insertion order.
func (c *Container) Variables() iter.Seq2[string, TypeID] {
	return func(yield func(string, TypeID) bool) {
		for _, v := range c.vars {
			if !yield(v.Name, v.Type) {
				return
			}
		}
		if c.dvds == nil {
			return
		}
		for e := c.dvds.Front(); e != nil; e = e.Next() {
			v := e.Value.(*dvd)
			if !yield(v.name, v.typ) {
				return
			}
		}
	}
}
