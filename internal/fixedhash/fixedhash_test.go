package fixedhash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertFirstWins(t *testing.T) {
	tab := New(8)

	require.True(t, tab.Insert("point", 1))
	require.False(t, tab.Insert("point", 2))

	id, ok := tab.Lookup("point")
	require.True(t, ok)
	require.Equal(t, uint32(1), id)
	require.Equal(t, 1, tab.Len())
}

func TestDefineLastWins(t *testing.T) {
	tab := New(8)

	tab.Define("point", 1)
	tab.Define("point", 2)

	id, ok := tab.Lookup("point")
	require.True(t, ok)
	require.Equal(t, uint32(2), id)
	require.Equal(t, 1, tab.Len())
}

func TestLookupMissing(t *testing.T) {
	tab := New(0)
	_, ok := tab.Lookup("nope")
	require.False(t, ok)
}

func TestManyEntries(t *testing.T) {
	tab := New(4) // force collisions
	for i := 0; i < 1000; i++ {
		require.True(t, tab.Insert(fmt.Sprintf("type%d", i), uint32(i)))
	}
	require.Equal(t, 1000, tab.Len())
	for i := 0; i < 1000; i++ {
		id, ok := tab.Lookup(fmt.Sprintf("type%d", i))
		require.True(t, ok)
		require.Equal(t, uint32(i), id)
	}
}
