package chm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackedResetTableInvariants(t *testing.T) {
	src := pseudoRandom(3*defaultResetInterval + 511)
	a := openBytes(t, packBytes(t, []PackEntry{{Name: "/blob", Data: src}}, nil), nil)
	defer a.Close()

	rt := a.reset
	require.NotNil(t, rt)
	assert.Equal(t, uint64(len(src)), rt.uncompressedLength)
	assert.Equal(t, 4, rt.intervals())

	for i := 1; i < len(rt.compressed); i++ {
		assert.Greater(t, rt.compressed[i], rt.compressed[i-1], "compressed axis at %d", i)
		assert.Greater(t, rt.uncompressed[i], rt.uncompressed[i-1], "uncompressed axis at %d", i)
	}
	last := len(rt.compressed) - 1
	assert.Equal(t, rt.compressedLength, rt.compressed[last])
	assert.Equal(t, rt.uncompressedLength, rt.uncompressed[last])

	// Every compressed entry fits the section.
	for _, name := range a.dir.names {
		e := a.dir.entries[name]
		if e.Section == 1 {
			assert.LessOrEqual(t, e.Offset+e.Length, rt.uncompressedLength, name)
		}
	}
}

func TestPackedSectionSpansAreContiguous(t *testing.T) {
	entries := []PackEntry{
		{Name: "/a", Data: bytes.Repeat([]byte("aa"), 400)},
		{Name: "/b", Data: bytes.Repeat([]byte("bb"), 300)},
		{Name: "/c", Data: bytes.Repeat([]byte("cc"), 200)},
	}
	a := openBytes(t, packBytes(t, entries, nil), nil)
	defer a.Close()

	// Entries are concatenated into the uncompressed stream in name order.
	var expectOff uint64
	for _, name := range []string{"/a", "/b", "/c"} {
		e, ok := a.dir.get(name)
		require.True(t, ok)
		assert.Equal(t, uint64(1), e.Section)
		assert.Equal(t, expectOff, e.Offset, name)
		expectOff += e.Length
	}

	for _, name := range []string{"/a", "/b", "/c"} {
		data, err := a.Extract(name)
		require.NoError(t, err)
		fi, err := a.Stat(name)
		require.NoError(t, err)
		assert.Equal(t, fi.Length, uint64(len(data)))
	}
}

func TestPackMixedStorage(t *testing.T) {
	entries := []PackEntry{
		{Name: "/packed", Data: bytes.Repeat([]byte("data "), 5000)},
		{Name: "/empty", Data: nil},
	}
	a := openBytes(t, packBytes(t, entries, nil), nil)
	defer a.Close()

	packed, err := a.Stat("/packed")
	require.NoError(t, err)
	assert.True(t, packed.Compressed)

	empty, err := a.Stat("/empty")
	require.NoError(t, err)
	assert.False(t, empty.Compressed, "zero-length entries stay in section 0")

	data, err := a.Extract("/empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPackStoreOnlyHasNoSystemEntries(t *testing.T) {
	image := packBytes(t, []PackEntry{{Name: "/plain", Data: []byte("stored")}},
		&Options{DisableCompression: true})
	a := openBytes(t, image, nil)
	defer a.Close()

	_, ok := a.dir.get(contentName)
	assert.False(t, ok)
	_, ok = a.dir.get(resetTableName)
	assert.False(t, ok)
	_, ok = a.dir.get(controlDataName)
	assert.False(t, ok)
	assert.Equal(t, []string{"/plain"}, a.List())
}

func TestPackHonorsWindowAndInterval(t *testing.T) {
	src := pseudoRandom(0x24000)
	image := packBytes(t, []PackEntry{{Name: "/x", Data: src}},
		&Options{WindowSize: 0x20000, ResetInterval: 0x10000})
	a := openBytes(t, image, nil)
	defer a.Close()

	assert.Equal(t, uint32(0x20000), a.lzxc.WindowSize)
	assert.Equal(t, uint32(0x10000), a.lzxc.ResetInterval)
	require.NotNil(t, a.reset)
	assert.Equal(t, uint64(0x10000), a.reset.blockSize)
	assert.Equal(t, 3, a.reset.intervals())

	data, err := a.Extract("/x")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(src, data))
}
