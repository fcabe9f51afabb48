package ctf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImportParentChildLookup(t *testing.T) {
	parent, err := Create()
	require.NoError(t, err)
	intID := addInt(t, parent, "int", 32)
	require.NoError(t, parent.Update())

	child, err := Create()
	require.NoError(t, err)
	require.NoError(t, child.Import(parent))
	require.Same(t, parent, child.Parent())

	td, err := child.AddTypedef(AddRoot, "myint", intID)
	require.NoError(t, err)

	// Child IDs live in the upper half of the space.
	require.Equal(t, uint32(1)<<31|1, uint32(td))

	// Parent types resolve through the child.
	resolved, err := child.Resolve(td)
	require.NoError(t, err)
	require.Equal(t, intID, resolved)

	kind, err := child.Kind(intID)
	require.NoError(t, err)
	require.Equal(t, KindInteger, kind)

	size, err := child.Size(td)
	require.NoError(t, err)
	require.Equal(t, uint64(4), size)

	// Name lookup falls through to the parent.
	got, err := child.LookupTypeByName("int")
	require.NoError(t, err)
	require.Equal(t, intID, got)

	require.NoError(t, child.Close())
	require.NoError(t, parent.Close())
}

func TestImportChildRoundTrip(t *testing.T) {
	parent, err := Create()
	require.NoError(t, err)
	intID := addInt(t, parent, "int", 32)
	require.NoError(t, parent.Update())

	child, err := Create()
	require.NoError(t, err)
	require.NoError(t, child.Import(parent))
	td, err := child.AddTypedef(AddRoot, "myint", intID)
	require.NoError(t, err)
	require.NoError(t, child.Update())

	data, err := child.Bytes()
	require.NoError(t, err)
	require.NoError(t, child.Close())

	// The child flag survives serialisation; a reopened child needs its
	// parent imported again before parent types resolve.
	r, err := Open(data)
	require.NoError(t, err)

	got, err := r.LookupTypeByName("myint")
	require.NoError(t, err)
	require.Equal(t, td, got)

	_, err = r.Resolve(td)
	require.ErrorIs(t, err, ErrNoParent)

	require.NoError(t, r.Import(parent))
	resolved, err := r.Resolve(td)
	require.NoError(t, err)
	require.Equal(t, intID, resolved)

	require.NoError(t, r.Close())
	require.NoError(t, parent.Close())
}

func TestParentNameRoundTrip(t *testing.T) {
	parent, err := Create()
	require.NoError(t, err)
	intID := addInt(t, parent, "int", 32)
	require.NoError(t, parent.Update())

	child, err := Create()
	require.NoError(t, err)
	require.NoError(t, child.Import(parent))
	child.SetParentName("kernel")
	_, err = child.AddTypedef(AddRoot, "myint", intID)
	require.NoError(t, err)
	require.NoError(t, child.Update())

	data, err := child.Bytes()
	require.NoError(t, err)
	require.NoError(t, child.Close())
	require.NoError(t, parent.Close())

	r, err := Open(data)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, "kernel", r.ParentName())
}

func TestImportRejectsNonEmptyParentHalf(t *testing.T) {
	parent, err := Create()
	require.NoError(t, err)
	defer parent.Close()

	c, err := Create()
	require.NoError(t, err)
	defer c.Close()
	addInt(t, c, "int", 32)

	require.ErrorIs(t, c.Import(parent), ErrNotEmpty)
	require.ErrorIs(t, c.Import(nil), ErrNoParent)
}

func TestCloseDeferredWhileReferenced(t *testing.T) {
	parent, err := Create()
	require.NoError(t, err)
	intID := addInt(t, parent, "int", 32)
	require.NoError(t, parent.Update())

	child, err := Create()
	require.NoError(t, err)
	require.NoError(t, child.Import(parent))

	// The child's reference keeps the parent's buffers alive past Close.
	require.NoError(t, parent.Close())
	kind, err := child.Kind(intID)
	require.NoError(t, err)
	require.Equal(t, KindInteger, kind)

	require.NoError(t, child.Close())
}
