package chm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryRoundTrip(t *testing.T) {
	entries := []*DirectoryEntry{
		{Name: "/a.html", Section: 1, Offset: 0, Length: 100},
		{Name: "/b.css", Section: 1, Offset: 100, Length: 50},
		{Name: "/images/logo.png", Section: 0, Offset: 0, Length: 2048},
	}
	blob, stats, err := serializeDirectory(entries, 4096)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stats.chunkCount)
	assert.Equal(t, uint32(1), stats.depth)
	assert.Equal(t, uint32(noChunk), stats.rootChunk)
	require.Len(t, blob, 4096)

	d, err := parseDirectory(blob, 4096, false, true)
	require.NoError(t, err)
	require.Len(t, d.entries, 3)
	for _, want := range entries {
		got, ok := d.get(want.Name)
		require.True(t, ok, want.Name)
		assert.Equal(t, want, got)
	}
}

func TestDirectoryMultiChunk(t *testing.T) {
	var entries []*DirectoryEntry
	for i := 0; i < 500; i++ {
		entries = append(entries, &DirectoryEntry{
			Name:    fmt.Sprintf("/content/page-%04d.html", i),
			Section: 1,
			Offset:  uint64(i) * 1000,
			Length:  1000,
		})
	}
	blob, stats, err := serializeDirectory(entries, 1024)
	require.NoError(t, err)
	assert.Greater(t, stats.lastPMGL, uint32(0), "500 entries must span several leaves")
	assert.Equal(t, uint32(2), stats.depth)
	assert.Equal(t, stats.lastPMGL+1, stats.rootChunk, "index layer follows the leaves")
	assert.Equal(t, 0, len(blob)%1024)

	d, err := parseDirectory(blob, 1024, false, true)
	require.NoError(t, err)
	assert.Len(t, d.entries, 500)
	got, ok := d.get("/content/page-0371.html")
	require.True(t, ok)
	assert.Equal(t, uint64(371000), got.Offset)
}

func TestDirectoryEmpty(t *testing.T) {
	blob, stats, err := serializeDirectory(nil, 4096)
	require.NoError(t, err)
	assert.Nil(t, blob)
	assert.Equal(t, uint32(0), stats.chunkCount)

	d, err := parseDirectory(nil, 4096, false, true)
	require.NoError(t, err)
	assert.Empty(t, d.entries)
}

func TestDirectoryUnsortedStrict(t *testing.T) {
	entries := []*DirectoryEntry{
		{Name: "/zzz", Length: 1},
		{Name: "/aaa", Length: 1},
	}
	// serializeDirectory trusts its caller, so an unsorted list reaches
	// the chunk as-is.
	blob, _, err := serializeDirectory(entries, 4096)
	require.NoError(t, err)

	_, err = parseDirectory(blob, 4096, false, true)
	assert.ErrorIs(t, err, ErrDirectoryUnsorted)

	// Lenient mode still collects both entries.
	d, err := parseDirectory(blob, 4096, false, false)
	require.NoError(t, err)
	assert.Len(t, d.entries, 2)
}

func TestDirectoryBadChunkSignature(t *testing.T) {
	blob, _, err := serializeDirectory([]*DirectoryEntry{{Name: "/x", Length: 1}}, 4096)
	require.NoError(t, err)
	copy(blob[:4], "QQQQ")

	_, err = parseDirectory(blob, 4096, false, false)
	var bse *BadSignatureError
	assert.ErrorAs(t, err, &bse)
}

func TestDirectoryRaggedLengthRejected(t *testing.T) {
	blob, _, err := serializeDirectory([]*DirectoryEntry{{Name: "/x", Length: 1}}, 4096)
	require.NoError(t, err)

	_, err = parseDirectory(blob[:4000], 4096, false, false)
	assert.ErrorIs(t, err, ErrDirectoryCorrupt)
}

func TestDirectoryFreeSpaceOutOfRange(t *testing.T) {
	blob, _, err := serializeDirectory([]*DirectoryEntry{{Name: "/x", Length: 1}}, 4096)
	require.NoError(t, err)
	// Claim more free space than the chunk payload holds.
	blob[4] = 0xFF
	blob[5] = 0xFF
	blob[6] = 0xFF
	blob[7] = 0xFF

	_, err = parseDirectory(blob, 4096, false, false)
	assert.ErrorIs(t, err, ErrDirectoryCorrupt)
}

func TestDirectoryLegacyEntries(t *testing.T) {
	// Legacy records: u8 name length, name, u8 compressed flag,
	// u64 LE offset, u32 LE length.
	var payload []byte
	addLegacy := func(name string, flag byte, off uint64, length uint32) {
		payload = append(payload, byte(len(name)))
		payload = append(payload, name...)
		payload = append(payload, flag)
		payload = appendU64le(payload, off)
		payload = appendU32le(payload, length)
	}
	addLegacy("/alpha", 1, 0, 123)
	addLegacy("/beta", 0, 500, 77)

	chunk := []byte(sigPMGL)
	chunk = appendU32le(chunk, uint32(4096-pmglHeaderSize-len(payload)))
	chunk = appendU32le(chunk, 0)
	chunk = appendU32le(chunk, noChunk)
	chunk = appendU32le(chunk, noChunk)
	chunk = append(chunk, payload...)
	chunk = appendPadding(chunk, 0, 4096)

	d, err := parseDirectory(chunk, 4096, true, true)
	require.NoError(t, err)
	require.Len(t, d.entries, 2)

	alpha, _ := d.get("/alpha")
	assert.Equal(t, uint64(1), alpha.Section)
	assert.Equal(t, uint64(123), alpha.Length)

	beta, _ := d.get("/beta")
	assert.Equal(t, uint64(0), beta.Section)
	assert.Equal(t, uint64(500), beta.Offset)
}

func TestEntryNameOverrunRejected(t *testing.T) {
	chunk := []byte(sigPMGL)
	chunk = appendU32le(chunk, 0) // no free space: payload runs to the end
	chunk = appendU32le(chunk, 0)
	chunk = appendU32le(chunk, noChunk)
	chunk = appendU32le(chunk, noChunk)
	chunk = appendEncint(chunk, 60000) // name length far past the chunk
	chunk = appendPadding(chunk, 0, 4096)

	_, err := parseDirectory(chunk, 4096, false, false)
	assert.ErrorIs(t, err, ErrDirectoryCorrupt)
}
