package ctf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/ctf-go/internal/format"
	"github.com/skdltmxn/ctf-go/internal/stream"
)

// buildExternalContainer serialises a container whose names all carry the
// external-table bit: an integer "int" and a struct "point" with one
// member "x".
func buildExternalContainer(t *testing.T) (data, ext []byte) {
	t.Helper()
	ext = []byte("\x00int\x00point\x00x\x00")

	types := stream.NewWriter()
	types.WriteU32(format.NameRef(1, 1)) // "int"
	types.WriteU32(format.Info(format.KindInteger, true, 0))
	types.WriteU32(4)
	types.WriteU32(format.EncodeEncoding(IntSigned, 0, 32))

	types.WriteU32(format.NameRef(1, 5)) // "point"
	types.WriteU32(format.Info(format.KindStruct, true, 1))
	types.WriteU32(4)
	types.WriteU32(format.NameRef(1, 11)) // member "x"
	types.WriteU32(1)
	types.WriteU32(0)

	h := &format.Header{
		Magic:   format.Magic,
		Version: format.CurrentVersion,
		StrOff:  uint32(types.Len()),
		StrLen:  1,
	}
	w := stream.NewWriter()
	h.Encode(w)
	w.WriteBytes(types.Bytes())
	w.WriteU8(0) // internal table holds only the empty string
	return w.Bytes(), ext
}

func TestExternalStringTable(t *testing.T) {
	data, ext := buildExternalContainer(t)

	c, err := Open(data, WithExternalStrings(ext))
	require.NoError(t, err)
	defer c.Close()

	id, err := c.LookupTypeByName("int")
	require.NoError(t, err)
	require.Equal(t, TypeID(1), id)

	name, err := c.TypeName(2)
	require.NoError(t, err)
	require.Equal(t, "point", name)

	id, err = c.LookupTypeByName("struct point")
	require.NoError(t, err)
	require.Equal(t, TypeID(2), id)

	members, err := c.Members(id)
	require.NoError(t, err)
	require.Equal(t, []Member{{Name: "x", Type: 1, Offset: 0}}, members)
}

func TestExternalStringTableMissing(t *testing.T) {
	data, _ := buildExternalContainer(t)

	// External-bit references cannot resolve without a supplied table.
	_, err := Open(data)
	require.ErrorIs(t, err, ErrBadString)
}
