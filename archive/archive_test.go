package archive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/ctf-go/ctf"
)

func buildContainer(t *testing.T, typeName string) *ctf.Container {
	t.Helper()
	c, err := ctf.Create()
	require.NoError(t, err)
	_, err = c.AddInteger(ctf.AddRoot, typeName, ctf.Encoding{Format: ctf.IntSigned, Bits: 32})
	require.NoError(t, err)
	require.NoError(t, c.Update())
	return c
}

func TestMultiMemberRoundTrip(t *testing.T) {
	a := New()
	require.NoError(t, a.Add("kernel", buildContainer(t, "ktype")))
	require.NoError(t, a.Add("app", buildContainer(t, "atype")))
	require.Equal(t, 2, a.Len())

	data, err := a.Encode()
	require.NoError(t, err)
	require.NoError(t, a.Close())

	r, err := OpenBytes(data)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 2, r.Len())

	k, err := r.Lookup("kernel")
	require.NoError(t, err)
	_, err = k.LookupTypeByName("ktype")
	require.NoError(t, err)

	app, err := r.Lookup("app")
	require.NoError(t, err)
	_, err = app.LookupTypeByName("atype")
	require.NoError(t, err)

	_, err = r.Lookup("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBareContainerWrapped(t *testing.T) {
	c := buildContainer(t, "int")
	raw, err := c.Bytes()
	require.NoError(t, err)

	a, err := OpenBytes(raw)
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, 1, a.Len())

	// The default member is the container itself, and encoding the
	// wrapper yields the container bytes back.
	got, err := a.Lookup("")
	require.NoError(t, err)
	_, err = got.LookupTypeByName("int")
	require.NoError(t, err)

	enc, err := a.Encode()
	require.NoError(t, err)
	require.Equal(t, raw, enc)
}

func TestAddDuplicate(t *testing.T) {
	a := New()
	c := buildContainer(t, "int")
	defer c.Close()

	require.NoError(t, a.Add("m", c))
	require.ErrorIs(t, a.Add("m", c), ErrExists)
}

func TestLookupEmptySelectsSoleMember(t *testing.T) {
	a := New()
	c := buildContainer(t, "int")
	require.NoError(t, a.Add("only", c))
	defer a.Close()

	got, err := a.Lookup("")
	require.NoError(t, err)
	require.Same(t, c, got)
}

func TestContainersOrder(t *testing.T) {
	a := New()
	require.NoError(t, a.Add("b", buildContainer(t, "x")))
	require.NoError(t, a.Add("a", buildContainer(t, "y")))
	defer a.Close()

	var names []string
	for name := range a.Containers() {
		names = append(names, name)
	}
	require.Equal(t, []string{"b", "a"}, names)
}

func TestCloseOrdering(t *testing.T) {
	a := New()
	c := buildContainer(t, "int")
	require.NoError(t, a.Add("m", c))

	// The callback must run after the members are gone, since members may
	// borrow storage the callback releases.
	closerRan := false
	a.SetCloser(func() error {
		closerRan = true
		_, err := c.Bytes()
		require.ErrorIs(t, err, ctf.ErrClosed)
		return nil
	})

	require.NoError(t, a.Close())
	require.True(t, closerRan)
}

func TestOpenBytesCorrupt(t *testing.T) {
	_, err := OpenBytes(nil)
	require.ErrorIs(t, err, ErrCorrupt)

	// Archive magic with a truncated member table.
	_, err = OpenBytes([]byte{0xfa, 0xc7, 1, 0, 5, 0, 0, 0})
	require.ErrorIs(t, err, ErrCorrupt)

	// Wrong archive version.
	_, err = OpenBytes([]byte{0xfa, 0xc7, 9, 0, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrCorrupt)
}
