package ctf

import (
	"bytes"
	"compress/zlib"
	"container/list"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/skdltmxn/ctf-go/internal/fixedhash"
	"github.com/skdltmxn/ctf-go/internal/format"
	"github.com/skdltmxn/ctf-go/internal/idspace"
	"github.com/skdltmxn/ctf-go/internal/stream"
)

// TypeID identifies a type within the combined parent/child identifier
// space. The zero value is never a valid type.
type TypeID uint32

// DataModel describes the integer and pointer width profile the container's
// types were compiled for.
type DataModel struct {
	Name        string
	PointerSize uint32
	CharSize    uint32
	ShortSize   uint32
	IntSize     uint32
	LongSize    uint32
}

// Predefined data models.
var (
	ModelILP32 = DataModel{Name: "ILP32", PointerSize: 4, CharSize: 1, ShortSize: 2, IntSize: 4, LongSize: 4}
	ModelLP64  = DataModel{Name: "LP64", PointerSize: 8, CharSize: 1, ShortSize: 2, IntSize: 4, LongSize: 8}
)

// Container holds one CTF container: the type data buffer, the read-only
// name indices built from it, and, for writable containers, the pending
// dynamic definitions not yet folded by Update.
//
// A Container is safe for concurrent readers only while no writer exists.
type Container struct {
	ops    format.Ops
	header *format.Header
	full   []byte // serialised container (header + body)
	body   []byte // uncompressed body the sections index into
	owned  bool   // body is a private copy rather than caller memory

	strs [2][]byte // internal and external string tables

	txlate []uint32 // local index -> record offset in the type section
	ptrtab []uint32 // local index -> index of pointer-to type
	vars   []Variable

	structs *fixedhash.Table
	unions  *fixedhash.Table
	enums   *fixedhash.Table
	names   *fixedhash.Table
	lookups []prefixLookup

	space      *idspace.Space
	model      DataModel
	parent     *Container
	parentName string
	refs       int // child containers holding a reference
	closed     bool

	writable bool
	dirty    bool

	dtds      *list.List // pending type definitions, insertion order
	dtdByID   map[TypeID]*dtd
	dtdByName map[string]*dtd
	dvds      *list.List // pending variable definitions
	dvdByName map[string]*dvd

	snapshots  uint64 // monotonic snapshot/update counter
	lastUpdate uint64 // snapshot counter value at the last Update

	lastErr error
	log     *zap.Logger
}

type options struct {
	log    *zap.Logger
	model  DataModel
	extStr []byte
}

// Option configures Open and Create.
type Option func(*options)

// WithLogger supplies a logger for debug events. The default is a no-op
// logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithDataModel sets the container's data model. The default is LP64.
func WithDataModel(m DataModel) Option {
	return func(o *options) { o.model = m }
}

// WithExternalStrings supplies an external string table. Name references
// with the external-table bit set resolve against it.
func WithExternalStrings(tab []byte) Option {
	return func(o *options) { o.extStr = tab }
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop(), model: ModelLP64}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Open loads a container from a serialised buffer. The buffer is borrowed
// unless its body is compressed, in which case a private decompressed copy
// is made. A corrupt buffer yields an error and no container.
func Open(data []byte, opts ...Option) (*Container, error) {
	o := buildOptions(opts)

	h, err := format.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	ops, err := format.OpsFor(h.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	body := data[format.HeaderSize:]
	owned := false
	if h.Flags&format.FlagCompress != 0 {
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		body, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		owned = true
	}

	c := &Container{
		ops:    ops,
		header: h,
		full:   data,
		body:   body,
		owned:  owned,
		model:  o.model,
		log:    o.log,
	}
	c.strs[1] = o.extStr

	if err := c.initIndexes(false); err != nil {
		return nil, err
	}
	if h.ParentName != 0 {
		name, err := c.strptr(h.ParentName)
		if err != nil {
			return nil, err
		}
		c.parentName = name
	}

	c.log.Debug("ctf: opened container",
		zap.Uint8("version", h.Version),
		zap.Bool("child", c.space.Child()),
		zap.Uint32("types", c.space.TypeMax()))
	return c, nil
}

// Create returns an empty container opened for incremental construction.
func Create(opts ...Option) (*Container, error) {
	o := buildOptions(opts)

	h := &format.Header{
		Magic:   format.Magic,
		Version: format.CurrentVersion,
		StrLen:  1,
	}
	ops, _ := format.OpsFor(h.Version)

	body := []byte{0} // string table holding only the empty string

	c := &Container{
		ops:      ops,
		header:   h,
		body:     body,
		owned:    true,
		model:    o.model,
		log:      o.log,
		writable: true,
	}
	c.strs[1] = o.extStr
	c.full = c.serialiseHeader(body)

	if err := c.initIndexes(false); err != nil {
		return nil, err
	}
	c.initDynamic()
	return c, nil
}

func (c *Container) initDynamic() {
	c.dtds = list.New()
	c.dtdByID = make(map[TypeID]*dtd)
	c.dtdByName = make(map[string]*dtd)
	c.dvds = list.New()
	c.dvdByName = make(map[string]*dvd)
}

// initIndexes builds the fixed lookup state from the container body: the
// index-to-offset translation table, the five name indices, the pointer
// translation table, and the sorted variable section. When define is set,
// later bindings overwrite earlier ones of the same name (commit folding);
// otherwise the first binding wins (initial load).
func (c *Container) initIndexes(define bool) error {
	h := c.header
	if int(h.StrOff)+int(h.StrLen) > len(c.body) || h.TypeOff > h.StrOff {
		return fmt.Errorf("%w: sections exceed buffer", ErrCorrupt)
	}
	c.strs[0] = c.body[h.StrOff : h.StrOff+h.StrLen]

	if err := c.buildTranslate(); err != nil {
		return err
	}

	child := h.Flags&format.FlagChild != 0
	if c.space != nil && c.space.Child() {
		// Import may have flipped a created container to the child half.
		child = true
	}
	c.space = idspace.New(child, uint32(len(c.txlate)-1), c.ops.MaxIndex())

	if err := c.buildNameIndexes(define); err != nil {
		return err
	}
	if err := c.buildPointerTable(); err != nil {
		return err
	}
	return c.parseVariables()
}

// buildTranslate walks the type section once, recording each record's
// offset so type IDs become O(1) random access.
func (c *Container) buildTranslate() error {
	h := c.header
	sect := c.body[h.TypeOff:h.StrOff]

	c.txlate = []uint32{0} // index 0 is the invalid sentinel
	off := 0
	for off+format.RecordSize <= len(sect) {
		info := le32(sect[off+4:])
		kind := c.ops.Kind(info)
		vlen := c.ops.Vlen(info)

		vb, err := c.ops.VBytes(kind, vlen)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		next := off + format.RecordSize + vb
		if next > len(sect) {
			return fmt.Errorf("%w: truncated type record", ErrCorrupt)
		}
		if uint32(len(c.txlate)) > c.ops.MaxIndex() {
			return fmt.Errorf("%w: too many types for version", ErrCorrupt)
		}
		c.txlate = append(c.txlate, uint32(off))
		off = next
	}
	return nil
}

type prefixLookup struct {
	prefix string
	table  *fixedhash.Table
}

func (c *Container) buildNameIndexes(define bool) error {
	n := len(c.txlate)
	c.structs = fixedhash.New(n / 4)
	c.unions = fixedhash.New(n / 8)
	c.enums = fixedhash.New(n / 8)
	c.names = fixedhash.New(n)
	c.lookups = []prefixLookup{
		{"struct", c.structs},
		{"union", c.unions},
		{"enum", c.enums},
		{"", c.names},
		{"", c.names}, // catch-all
	}

	for index := uint32(1); index < uint32(len(c.txlate)); index++ {
		rec := c.recordAt(index)
		if !c.ops.IsRoot(rec.info) {
			continue
		}
		name, err := c.strptr(rec.name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}

		kind := c.ops.Kind(rec.info)
		if kind == format.KindForward {
			// Forwards index under their hinted kind.
			kind = format.Kind(rec.sizeOrRef)
		}

		var tab *fixedhash.Table
		switch kind {
		case format.KindStruct:
			tab = c.structs
		case format.KindUnion:
			tab = c.unions
		case format.KindEnum:
			tab = c.enums
		default:
			tab = c.names
		}

		id := uint32(c.id(index))
		if define {
			tab.Define(name, id)
		} else {
			tab.Insert(name, id)
		}
	}
	return nil
}

// buildPointerTable records, for each locally referenced type, the local
// pointer type that points at it. Name lookups use it to resolve trailing
// '*' qualifiers.
func (c *Container) buildPointerTable() error {
	c.ptrtab = make([]uint32, len(c.txlate))
	for index := uint32(1); index < uint32(len(c.txlate)); index++ {
		rec := c.recordAt(index)
		if c.ops.Kind(rec.info) != format.KindPointer {
			continue
		}
		ref := rec.sizeOrRef
		if c.space.Local(ref) {
			ri := idspace.Index(ref)
			if int(ri) < len(c.ptrtab) && c.ptrtab[ri] == 0 {
				c.ptrtab[ri] = index
			}
		}
	}
	return nil
}

// id converts a local index into a global TypeID.
func (c *Container) id(index uint32) TypeID {
	return TypeID(idspace.ID(index, c.space.Child()))
}

// Import attaches a parent container whose type IDs this container's types
// extend. The parent gains a reference released by Close. A container that
// already holds local types in the parent half cannot be imported.
func (c *Container) Import(parent *Container) error {
	if parent == nil {
		return c.fail(ErrNoParent)
	}
	if !c.space.Child() {
		if c.space.TypeMax() != 0 || (c.dtds != nil && c.dtds.Len() != 0) {
			return c.fail(ErrNotEmpty)
		}
		c.space.SetChild()
		c.header.Flags |= format.FlagChild
	}
	if c.parent != nil {
		c.parent.release()
	}
	c.parent = parent
	parent.refs++
	c.log.Debug("ctf: imported parent",
		zap.Uint32("parent_types", parent.space.TypeMax()))
	return nil
}

// Parent returns the attached parent container, if any.
func (c *Container) Parent() *Container {
	return c.parent
}

// ParentName returns the name recorded for this container's parent, such
// as the archive member the parent came from. Empty if none was recorded.
func (c *Container) ParentName() string {
	return c.parentName
}

// SetParentName records the parent's name. The name is folded into the
// header by the next Update and survives serialisation.
func (c *Container) SetParentName(name string) {
	c.parentName = name
	if c.writable {
		c.dirty = true
	}
}

// Close releases the container. If child containers still reference it,
// teardown is deferred until the last reference is released; the parent
// link, if any, is released immediately.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.parent != nil {
		c.parent.release()
		c.parent = nil
	}
	if c.refs == 0 {
		c.teardown()
	}
	return nil
}

func (c *Container) release() {
	if c.refs > 0 {
		c.refs--
	}
	if c.refs == 0 && c.closed {
		c.teardown()
	}
}

// teardown drops buffer references. Owned copies become garbage; borrowed
// buffers are merely detached so the true owner may release them.
func (c *Container) teardown() {
	c.full = nil
	c.body = nil
	c.strs[0] = nil
	c.strs[1] = nil
	c.txlate = nil
	c.ptrtab = nil
	c.owned = false
}

// Bytes returns the container's serialised form. Pending dynamic
// definitions are not included until Update folds them in.
func (c *Container) Bytes() ([]byte, error) {
	if c.closed {
		return nil, c.fail(ErrClosed)
	}
	return c.full, nil
}

// Version returns the container format version.
func (c *Container) Version() uint8 {
	return c.header.Version
}

// Model returns the container's data model.
func (c *Container) Model() DataModel {
	return c.model
}

// SetModel sets the container's data model.
func (c *Container) SetModel(m DataModel) {
	c.model = m
}

// TypeCount returns the number of committed types in this container, not
// counting the parent's.
func (c *Container) TypeCount() uint32 {
	return c.space.TypeMax()
}

// LastError returns the most recent error recorded by a failed operation
// on this container.
func (c *Container) LastError() error {
	return c.lastErr
}

// fail records and returns an error.
func (c *Container) fail(err error) error {
	c.lastErr = err
	return err
}

// serialiseHeader builds the full serialised form for the given body.
func (c *Container) serialiseHeader(body []byte) []byte {
	w := stream.NewWriter()
	c.header.Encode(w)
	w.WriteBytes(body)
	return w.Bytes()
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
