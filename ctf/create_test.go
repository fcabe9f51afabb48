package ctf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func addInt(t *testing.T, c *Container, name string, bits uint32) TypeID {
	t.Helper()
	id, err := c.AddInteger(AddRoot, name, Encoding{Format: IntSigned, Bits: bits})
	require.NoError(t, err)
	return id
}

func TestCreateEmpty(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, uint32(0), c.TypeCount())
	require.Equal(t, uint8(2), c.Version())

	_, err = c.LookupTypeByName("int")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddAndLookupPending(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	intID := addInt(t, c, "int", 32)

	got, err := c.LookupTypeByName("int")
	require.NoError(t, err)
	require.Equal(t, intID, got)

	kind, err := c.Kind(intID)
	require.NoError(t, err)
	require.Equal(t, KindInteger, kind)

	enc, err := c.Encoding(intID)
	require.NoError(t, err)
	require.Equal(t, IntSigned, enc.Format)
	require.Equal(t, uint32(32), enc.Bits)

	size, err := c.Size(intID)
	require.NoError(t, err)
	require.Equal(t, uint64(4), size)
}

func TestNonRootInvisibleToLookup(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	id, err := c.AddInteger(AddNonRoot, "hidden", Encoding{Format: IntSigned, Bits: 32})
	require.NoError(t, err)

	_, err = c.LookupTypeByName("hidden")
	require.ErrorIs(t, err, ErrNotFound)

	// Still reachable by ID.
	kind, err := c.Kind(id)
	require.NoError(t, err)
	require.Equal(t, KindInteger, kind)
}

func TestNamespaces(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	st, err := c.AddStruct(AddRoot, "node")
	require.NoError(t, err)
	un, err := c.AddUnion(AddRoot, "node")
	require.NoError(t, err)
	en, err := c.AddEnum(AddRoot, "node")
	require.NoError(t, err)

	got, err := c.LookupTypeByName("struct node")
	require.NoError(t, err)
	require.Equal(t, st, got)

	got, err = c.LookupTypeByName("union node")
	require.NoError(t, err)
	require.Equal(t, un, got)

	got, err = c.LookupTypeByName("enum node")
	require.NoError(t, err)
	require.Equal(t, en, got)
}

func TestStructMembers(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	intID := addInt(t, c, "int", 32)
	st, err := c.AddStruct(AddRoot, "point")
	require.NoError(t, err)

	require.NoError(t, c.AddMember(st, "x", intID, 0))
	require.NoError(t, c.AddMember(st, "y", intID, 32))
	require.ErrorIs(t, c.AddMember(st, "x", intID, 64), ErrDuplicate)
	require.ErrorIs(t, c.AddMember(intID, "z", intID, 0), ErrKindMismatch)

	members, err := c.Members(st)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, Member{Name: "x", Type: intID, Offset: 0}, members[0])
	require.Equal(t, Member{Name: "y", Type: intID, Offset: 32}, members[1])

	m, err := c.MemberInfo(st, "y")
	require.NoError(t, err)
	require.Equal(t, uint64(32), m.Offset)

	size, err := c.Size(st)
	require.NoError(t, err)
	require.Equal(t, uint64(8), size)
}

func TestAddMemberOffsetRange(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	intID := addInt(t, c, "int", 32)
	st, err := c.AddStruct(AddRoot, "big")
	require.NoError(t, err)
	require.NoError(t, c.AddMember(st, "head", intID, 0))

	// An offset past the 32-bit serialised field is rejected up front
	// rather than truncated by a later commit.
	err = c.AddMember(st, "tail", intID, uint64(1)<<32+64)
	require.ErrorIs(t, err, ErrKindMismatch)

	members, err := c.Members(st)
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.NoError(t, c.Update())
	m, err := c.MemberInfo(st, "head")
	require.NoError(t, err)
	require.Equal(t, uint64(0), m.Offset)
}

func TestEnumerators(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	en, err := c.AddEnum(AddRoot, "color")
	require.NoError(t, err)

	require.NoError(t, c.AddEnumerator(en, "RED", 0))
	require.NoError(t, c.AddEnumerator(en, "BLUE", 5))
	require.ErrorIs(t, c.AddEnumerator(en, "RED", 9), ErrDuplicate)

	enums, err := c.Enumerators(en)
	require.NoError(t, err)
	require.Equal(t, []Enumerator{{"RED", 0}, {"BLUE", 5}}, enums)
}

func TestForwardHint(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	fw, err := c.AddForward(AddRoot, "node", KindStruct)
	require.NoError(t, err)

	hint, err := c.ForwardKind(fw)
	require.NoError(t, err)
	require.Equal(t, KindStruct, hint)

	// Forwards live in their hinted namespace.
	got, err := c.LookupTypeByName("struct node")
	require.NoError(t, err)
	require.Equal(t, fw, got)

	_, err = c.AddForward(AddRoot, "bad", KindInteger)
	require.ErrorIs(t, err, ErrKindMismatch)
}

func TestReferenceChain(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	intID := addInt(t, c, "int", 32)
	td, err := c.AddTypedef(AddRoot, "myint", intID)
	require.NoError(t, err)
	cst, err := c.AddConst(AddRoot, td)
	require.NoError(t, err)
	vol, err := c.AddVolatile(AddRoot, cst)
	require.NoError(t, err)

	resolved, err := c.Resolve(vol)
	require.NoError(t, err)
	require.Equal(t, intID, resolved)

	ref, err := c.Reference(vol)
	require.NoError(t, err)
	require.Equal(t, cst, ref)

	size, err := c.Size(vol)
	require.NoError(t, err)
	require.Equal(t, uint64(4), size)
}

func TestAddRefValidation(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.AddPointer(AddRoot, TypeID(999))
	require.ErrorIs(t, err, ErrBadID)

	_, err = c.AddTypedef(AddRoot, "bad", 0)
	require.ErrorIs(t, err, ErrBadID)
}

func TestSliceOfNonIntegral(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	intID := addInt(t, c, "int", 32)
	st, err := c.AddStruct(AddRoot, "s")
	require.NoError(t, err)

	_, err = c.AddSlice(AddRoot, SliceInfo{Type: st, Offset: 0, Bits: 3})
	require.ErrorIs(t, err, ErrKindMismatch)

	sl, err := c.AddSlice(AddRoot, SliceInfo{Type: intID, Offset: 2, Bits: 3})
	require.NoError(t, err)

	enc, err := c.Encoding(sl)
	require.NoError(t, err)
	require.Equal(t, uint32(2), enc.Offset)
	require.Equal(t, uint32(3), enc.Bits)
	require.Equal(t, IntSigned, enc.Format)
}

func TestAddVariable(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	intID := addInt(t, c, "int", 32)
	require.NoError(t, c.AddVariable("counter", intID))
	require.ErrorIs(t, c.AddVariable("counter", intID), ErrDuplicate)

	got, err := c.LookupVariable("counter")
	require.NoError(t, err)
	require.Equal(t, intID, got)

	_, err = c.LookupVariable("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRollbackRemovesNewerDefinitions(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	s1, err := c.Snapshot()
	require.NoError(t, err)
	a := addInt(t, c, "alpha", 32)

	_, err = c.Snapshot()
	require.NoError(t, err)
	b, err := c.AddStruct(AddRoot, "beta")
	require.NoError(t, err)
	require.NoError(t, c.AddVariable("v", a))

	require.NoError(t, c.Rollback(s1))

	// alpha, added while s1 was current, survives.
	got, err := c.LookupTypeByName("alpha")
	require.NoError(t, err)
	require.Equal(t, a, got)

	// beta and the variable are gone.
	_, err = c.LookupTypeByName("struct beta")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.Kind(b)
	require.ErrorIs(t, err, ErrBadID)
	_, err = c.LookupVariable("v")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRollbackBadSnapshot(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	require.ErrorIs(t, c.Rollback(SnapshotID{}), ErrBadSnapshot)
	require.ErrorIs(t, c.Rollback(SnapshotID{snap: 42}), ErrBadSnapshot)
}

func TestReadOnlyContainerRejectsWrites(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	addInt(t, c, "int", 32)
	require.NoError(t, c.Update())

	data, err := c.Bytes()
	require.NoError(t, err)
	require.NoError(t, c.Close())

	ro, err := Open(data)
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.AddInteger(AddRoot, "nope", Encoding{Bits: 32})
	require.ErrorIs(t, err, ErrReadOnly)
	_, err = ro.Snapshot()
	require.ErrorIs(t, err, ErrReadOnly)
	require.ErrorIs(t, ro.AddVariable("v", 1), ErrReadOnly)
	require.ErrorIs(t, ro.LastError(), ErrReadOnly)
}

func TestBadIDLookups(t *testing.T) {
	c, err := Create()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Kind(0)
	require.ErrorIs(t, err, ErrBadID)

	// Child-half IDs are invalid without an imported parent.
	_, err = c.Kind(TypeID(uint32(1) << 31))
	require.ErrorIs(t, err, ErrBadID)
}
