package ctf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skdltmxn/ctf-go/internal/format"
)

// Declarator precedence levels, innermost to outermost. C declarator
// syntax binds suffixes (arrays, functions) tighter than prefixes
// (pointers), which is what forces parentheses around a pointer that a
// suffix applies to.
type declPrec int

const (
	precBase declPrec = iota
	precPointer
	precArray
	precFunction
	precMax
)

type decl struct {
	c       *Container
	parts   [precMax][]string
	order   [precMax]int // sequence in which each level was first used
	counter int
	depth   int
	err     error
}

func (d *decl) push(p declPrec, s string) {
	if d.err != nil {
		return
	}
	if d.order[p] == 0 {
		d.counter++
		d.order[p] = d.counter
	}
	d.parts[p] = append(d.parts[p], s)
}

// pushFront inserts before existing parts at the level. Qualifiers on a
// base type read left of it ("const int"), not after.
func (d *decl) pushFront(p declPrec, s string) {
	if d.err != nil {
		return
	}
	if d.order[p] == 0 {
		d.counter++
		d.order[p] = d.counter
	}
	d.parts[p] = append([]string{s}, d.parts[p]...)
}

func (d *decl) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// walk descends from id to the base type, pushing one node per level of
// the declarator on the way back up. Returns the precedence of the node
// it pushed last, so qualifiers know which level they attach to.
func (d *decl) walk(id TypeID) declPrec {
	if d.err != nil {
		return precBase
	}
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxResolveDepth {
		d.fail(fmt.Errorf("%w: declarator chain too deep", ErrCorrupt))
		return precBase
	}

	c := d.c
	tr, err := c.fetch(id)
	if err != nil {
		d.fail(err)
		return precBase
	}

	switch tr.kind {
	case format.KindPointer:
		ref, err := c.Reference(id)
		if err != nil {
			d.fail(err)
			return precBase
		}
		d.walk(ref)
		d.push(precPointer, "*")
		return precPointer

	case format.KindVolatile, format.KindConst, format.KindRestrict:
		ref, err := c.Reference(id)
		if err != nil {
			d.fail(err)
			return precBase
		}
		qual := map[format.Kind]string{
			format.KindVolatile: "volatile",
			format.KindConst:    "const",
			format.KindRestrict: "restrict",
		}[tr.kind]
		under := d.walk(ref)
		if under == precBase {
			d.pushFront(precBase, qual)
		} else {
			d.push(under, qual)
		}
		return under

	case format.KindArray:
		ai, err := c.ArrayInfo(id)
		if err != nil {
			d.fail(err)
			return precBase
		}
		d.walk(ai.Contents)
		d.push(precArray, "["+strconv.FormatUint(uint64(ai.Count), 10)+"]")
		return precArray

	case format.KindFunction:
		fi, err := c.FunctionInfo(id)
		if err != nil {
			d.fail(err)
			return precBase
		}
		d.walk(fi.Return)
		args := make([]string, 0, len(fi.Args))
		for _, a := range fi.Args {
			s, err := c.Declaration(a)
			if err != nil {
				d.fail(err)
				return precBase
			}
			args = append(args, s)
		}
		sig := "(void)"
		if len(args) > 0 {
			sig = "(" + strings.Join(args, ", ") + ")"
		}
		d.push(precFunction, sig)
		return precFunction

	case format.KindSlice:
		si, err := c.SliceInfo(id)
		if err != nil {
			d.fail(err)
			return precBase
		}
		return d.walk(si.Type)

	case format.KindStruct, format.KindUnion, format.KindEnum:
		name := tr.kind.String()
		if tr.name != "" {
			name += " " + tr.name
		}
		d.push(precBase, name)
		return precBase

	case format.KindForward:
		hint, err := c.ForwardKind(id)
		if err != nil {
			d.fail(err)
			return precBase
		}
		name := hint.String()
		if tr.name != "" {
			name += " " + tr.name
		}
		d.push(precBase, name)
		return precBase

	default:
		if tr.name != "" {
			d.push(precBase, tr.name)
		} else {
			d.push(precBase, tr.kind.String())
		}
		return precBase
	}
}

// Declaration renders the C declaration syntax for a type, such as
// "const char *" or "int (*)[5]". The pointer is parenthesised exactly
// when an array or function suffix binds to it rather than to the base.
func (c *Container) Declaration(id TypeID) (string, error) {
	if c.closed {
		return "", c.fail(ErrClosed)
	}
	d := &decl{c: c}
	d.walk(id)
	if d.err != nil {
		return "", c.fail(d.err)
	}

	paren := len(d.parts[precPointer]) > 0 &&
		((d.order[precArray] != 0 && d.order[precArray] < d.order[precPointer]) ||
			(d.order[precFunction] != 0 && d.order[precFunction] < d.order[precPointer]))

	var b strings.Builder
	b.WriteString(strings.Join(d.parts[precBase], " "))

	suffix := len(d.parts[precPointer]) > 0 ||
		len(d.parts[precArray]) > 0 ||
		len(d.parts[precFunction]) > 0
	if suffix {
		b.WriteByte(' ')
	}

	if paren {
		b.WriteByte('(')
	}
	for _, s := range d.parts[precPointer] {
		b.WriteString(s)
	}
	if paren {
		b.WriteByte(')')
	}
	for _, s := range d.parts[precFunction] {
		b.WriteString(s)
	}
	// Array suffixes read outermost first, the reverse of push order.
	for i := len(d.parts[precArray]) - 1; i >= 0; i-- {
		b.WriteString(d.parts[precArray][i])
	}
	return b.String(), nil
}
