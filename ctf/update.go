package ctf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skdltmxn/ctf-go/internal/format"
	"github.com/skdltmxn/ctf-go/internal/stream"
)

// strtabBuilder assembles a deduplicated string table. Offset 0 is always
// the empty string.
type strtabBuilder struct {
	buf []byte
	off map[string]uint32
}

func newStrtabBuilder() *strtabBuilder {
	return &strtabBuilder{
		buf: []byte{0},
		off: map[string]uint32{"": 0},
	}
}

// ref interns name and returns its reference.
func (b *strtabBuilder) ref(name string) uint32 {
	if off, ok := b.off[name]; ok {
		return off
	}
	off := uint32(len(b.buf))
	b.buf = append(b.buf, name...)
	b.buf = append(b.buf, 0)
	b.off[name] = off
	return off
}

// Update folds every pending definition into a freshly serialised body and
// rebuilds the lookup state from it. After a successful Update the pending
// log is empty, all added types are visible to name lookup, and snapshots
// taken earlier can no longer be rolled back to.
func (c *Container) Update() error {
	if err := c.writableCheck(); err != nil {
		return err
	}
	if !c.dirty {
		return nil
	}

	strtab := newStrtabBuilder()
	types := stream.NewWriter()

	// Committed records first, in index order, then the pending log. IDs
	// never change across an Update, only the body layout does.
	for index := uint32(1); index <= c.space.TypeMax(); index++ {
		if err := c.encodeStatic(types, strtab, index); err != nil {
			return err
		}
	}
	folded := 0
	for e := c.dtds.Front(); e != nil; e = e.Next() {
		if err := c.encodeDynamic(types, strtab, e.Value.(*dtd)); err != nil {
			return err
		}
		folded++
	}

	vars := c.mergeVariables()
	varBytes := stream.NewWriter()
	for _, v := range vars {
		varBytes.WriteU32(strtab.ref(v.Name))
		varBytes.WriteU32(uint32(v.Type))
	}

	body := stream.NewWriter()
	h := c.header
	h.ParentName = 0
	if c.parentName != "" {
		h.ParentName = strtab.ref(c.parentName)
	}
	h.VarOff = 0
	body.WriteBytes(varBytes.Bytes())
	h.TypeOff = uint32(body.Len())
	body.WriteBytes(types.Bytes())
	h.StrOff = uint32(body.Len())
	body.WriteBytes(strtab.buf)
	h.StrLen = uint32(len(strtab.buf))

	c.body = body.Bytes()
	c.full = c.serialiseHeader(c.body)
	c.owned = true

	if err := c.initIndexes(true); err != nil {
		return err
	}
	c.initDynamic()
	c.dirty = false
	c.snapshots++
	c.lastUpdate = c.snapshots

	c.log.Debug("ctf: updated container",
		zap.Int("types_folded", folded),
		zap.Uint32("type_count", c.space.TypeMax()),
		zap.Int("variables", len(vars)))
	return nil
}

// encodeStatic re-encodes an already committed record. Payloads that carry
// no string references are copied verbatim; struct, union, and enum
// payloads are rebuilt so their name references land in the new table.
func (c *Container) encodeStatic(w *stream.Writer, strtab *strtabBuilder, index uint32) error {
	rec := c.recordAt(index)
	name, err := c.strptr(rec.name)
	if err != nil {
		return err
	}
	id := c.id(index)
	kind := c.ops.Kind(rec.info)

	w.WriteU32(strtab.ref(name))
	w.WriteU32(rec.info)
	w.WriteU32(rec.sizeOrRef)

	switch kind {
	case format.KindStruct, format.KindUnion:
		members, err := c.Members(id)
		if err != nil {
			return err
		}
		encodeMembers(w, strtab, members)
	case format.KindEnum:
		enums, err := c.Enumerators(id)
		if err != nil {
			return err
		}
		encodeEnumerators(w, strtab, enums)
	default:
		w.WriteBytes(rec.vdata)
	}
	return nil
}

func (c *Container) encodeDynamic(w *stream.Writer, strtab *strtabBuilder, d *dtd) error {
	var vlen uint32
	switch d.kind {
	case format.KindStruct, format.KindUnion:
		vlen = uint32(len(d.members))
	case format.KindEnum:
		vlen = uint32(len(d.enums))
	case format.KindFunction:
		vlen = uint32(len(d.argv))
	}
	if vlen > c.ops.MaxVlen() {
		return c.fail(fmt.Errorf("%w: %d entries in %s payload", ErrFull, vlen, d.kind))
	}
	info := format.Info(d.kind, d.root, vlen)

	sizeOrRef := d.size
	switch d.kind {
	case format.KindArray, format.KindSlice:
		sizeOrRef = 0
	}

	w.WriteU32(strtab.ref(d.name))
	w.WriteU32(info)
	w.WriteU32(sizeOrRef)

	switch d.kind {
	case format.KindInteger, format.KindFloat:
		w.WriteU32(format.EncodeEncoding(d.enc.Format, d.enc.Offset, d.enc.Bits))
	case format.KindArray:
		w.WriteU32(uint32(d.arr.Contents))
		w.WriteU32(uint32(d.arr.Index))
		w.WriteU32(d.arr.Count)
	case format.KindSlice:
		w.WriteU32(uint32(d.slice.Type))
		w.WriteU16(uint16(d.slice.Offset))
		w.WriteU16(uint16(d.slice.Bits))
	case format.KindFunction:
		for _, a := range d.argv {
			w.WriteU32(uint32(a))
		}
	case format.KindStruct, format.KindUnion:
		encodeMembers(w, strtab, d.members)
	case format.KindEnum:
		encodeEnumerators(w, strtab, d.enums)
	}
	return nil
}

func encodeMembers(w *stream.Writer, strtab *strtabBuilder, members []Member) {
	for _, m := range members {
		w.WriteU32(strtab.ref(m.Name))
		w.WriteU32(uint32(m.Type))
		w.WriteU32(uint32(m.Offset))
	}
}

func encodeEnumerators(w *stream.Writer, strtab *strtabBuilder, enums []Enumerator) {
	for _, e := range enums {
		w.WriteU32(strtab.ref(e.Name))
		w.WriteI32(int32(e.Value))
	}
}

// mergeVariables joins the committed variable section with the pending log,
// sorted by name for binary search.
func (c *Container) mergeVariables() []Variable {
	merged := make([]Variable, 0, len(c.vars)+c.dvds.Len())
	merged = append(merged, c.vars...)
	for e := c.dvds.Front(); e != nil; e = e.Next() {
		v := e.Value.(*dvd)
		merged = append(merged, Variable{Name: v.name, Type: v.typ})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged
}

// Compress reserialises the container with a zlib-compressed body. The
// in-memory state is unaffected; only the buffer returned by Bytes changes.
func (c *Container) Compress() error {
	if c.closed {
		return c.fail(ErrClosed)
	}
	h := *c.header
	h.Flags |= format.FlagCompress

	w := stream.NewWriter()
	h.Encode(w)
	compressed, err := zlibCompress(c.body)
	if err != nil {
		return c.fail(fmt.Errorf("ctf: compress: %w", err))
	}
	w.WriteBytes(compressed)
	c.full = w.Bytes()
	return nil
}

func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
