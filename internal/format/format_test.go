package format

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/ctf-go/internal/stream"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Magic:   Magic,
		Version: CurrentVersion,
		Flags:   FlagChild,
		VarOff:  0,
		TypeOff: 16,
		StrOff:  40,
		StrLen:  7,
	}

	w := stream.NewWriter()
	h.Encode(w)
	require.Equal(t, HeaderSize, w.Len())

	got, err := ParseHeader(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestParseHeaderBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	_, err := ParseHeader(buf)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestParseHeaderTruncated(t *testing.T) {
	_, err := ParseHeader([]byte{0xf2, 0xc7})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestParseHeaderSectionOrder(t *testing.T) {
	h := &Header{Magic: Magic, Version: CurrentVersion, TypeOff: 50, StrOff: 20}
	w := stream.NewWriter()
	h.Encode(w)
	_, err := ParseHeader(w.Bytes())
	require.Error(t, err)
}

func TestInfoPacking(t *testing.T) {
	ops, err := OpsFor(VersionV2)
	require.NoError(t, err)

	info := Info(KindStruct, true, 3)
	require.Equal(t, KindStruct, ops.Kind(info))
	require.True(t, ops.IsRoot(info))
	require.Equal(t, uint32(3), ops.Vlen(info))

	info = Info(KindSlice, false, 0)
	require.Equal(t, KindSlice, ops.Kind(info))
	require.False(t, ops.IsRoot(info))
	require.Equal(t, uint32(0), ops.Vlen(info))
}

func TestOpsForUnsupported(t *testing.T) {
	_, err := OpsFor(9)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestV1Info(t *testing.T) {
	ops, err := OpsFor(VersionV1)
	require.NoError(t, err)

	// kind:5 at shift 11, root at bit 10, vlen:10.
	info := uint32(KindEnum)<<11 | 1<<10 | 5
	require.Equal(t, KindEnum, ops.Kind(info))
	require.True(t, ops.IsRoot(info))
	require.Equal(t, uint32(5), ops.Vlen(info))
	require.Equal(t, uint32(0xffff), ops.MaxIndex())
}

func TestVBytes(t *testing.T) {
	ops, err := OpsFor(VersionV2)
	require.NoError(t, err)

	cases := []struct {
		kind Kind
		vlen uint32
		want int
	}{
		{KindInteger, 0, 4},
		{KindFloat, 0, 4},
		{KindArray, 0, 12},
		{KindSlice, 0, 8},
		{KindFunction, 3, 12},
		{KindStruct, 2, 24},
		{KindUnion, 1, 12},
		{KindEnum, 4, 32},
		{KindPointer, 0, 0},
		{KindTypedef, 0, 0},
		{KindForward, 0, 0},
	}
	for _, tc := range cases {
		got, err := ops.VBytes(tc.kind, tc.vlen)
		require.NoError(t, err, tc.kind)
		require.Equal(t, tc.want, got, tc.kind)
	}

	_, err = ops.VBytes(Kind(40), 0)
	require.ErrorIs(t, err, ErrBadRecord)
}

func TestNameRef(t *testing.T) {
	ref := NameRef(1, 42)
	require.Equal(t, 1, NameTable(ref))
	require.Equal(t, uint32(42), NameOffset(ref))

	ref = NameRef(0, 42)
	require.Equal(t, 0, NameTable(ref))
	require.Equal(t, uint32(42), NameOffset(ref))
}

func TestEncodingWord(t *testing.T) {
	word := EncodeEncoding(3, 8, 16)
	f, off, bits := DecodeEncoding(word)
	require.Equal(t, uint32(3), f)
	require.Equal(t, uint32(8), off)
	require.Equal(t, uint32(16), bits)
}
