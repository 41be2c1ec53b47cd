// resettable.go
//
// The LZX reset table maps uncompressed offsets to compressed offsets at
// every reset-interval boundary, which is what makes random access into the
// compressed section possible. The table is stored as an ordinary directory
// entry (resetTableName); the record is a 40-byte header followed by
// cumulative (compressed, uncompressed) offset pairs, one per interval plus
// a final sentinel equal to the section totals.

package chm

import (
	"fmt"
	"sort"
)

const (
	resetTableVersion = 2
	resetEntryWidth   = 8  // width of one offset value in an entry pair
	resetHeaderSize   = 40 // offset of the first entry within the record
)

// resetTable is the parsed form of the reset-table record.
// Both offset slices are cumulative from the start of the section, strictly
// increasing, with the final element equal to the section total.
type resetTable struct {
	blockSize          uint64
	uncompressedLength uint64
	compressedLength   uint64
	compressed         []uint64
	uncompressed       []uint64
}

// intervals returns the count of reset intervals the table describes.
func (t *resetTable) intervals() int { return len(t.compressed) - 1 }

// locate returns the index of the interval containing uncompressed offset u:
// the entry with the greatest uncompressed offset ≤ u.
func (t *resetTable) locate(u uint64) (int, error) {
	if u >= t.uncompressedLength {
		return 0, fmt.Errorf("offset %d beyond section end %d: %w", u, t.uncompressedLength, ErrResetTableCorrupt)
	}
	n := t.intervals()
	i := sort.Search(n, func(i int) bool { return t.uncompressed[i+1] > u })
	if i >= n {
		return 0, ErrResetTableCorrupt
	}
	return i, nil
}

// span returns the compressed and uncompressed extents of interval i.
func (t *resetTable) span(i int) (compStart, compEnd, uStart, uEnd uint64) {
	return t.compressed[i], t.compressed[i+1], t.uncompressed[i], t.uncompressed[i+1]
}

func parseResetTable(data []byte) (*resetTable, error) {
	r := newBitReader(data)

	var version, blockCount, entrySize, tableOffset uint32
	for _, f := range []*uint32{&version, &blockCount, &entrySize, &tableOffset} {
		v, err := r.readU32le()
		if err != nil {
			return nil, fmt.Errorf("reset table header: %w", ErrResetTableCorrupt)
		}
		*f = v
	}
	if version != resetTableVersion {
		return nil, fmt.Errorf("reset table version %d: %w", version, ErrResetTableCorrupt)
	}
	if entrySize != resetEntryWidth {
		return nil, fmt.Errorf("reset table entry size %d: %w", entrySize, ErrResetTableCorrupt)
	}
	if tableOffset < resetHeaderSize || int(tableOffset) > len(data) {
		return nil, fmt.Errorf("reset table offset %d: %w", tableOffset, ErrResetTableCorrupt)
	}

	t := &resetTable{}
	for _, f := range []*uint64{&t.uncompressedLength, &t.compressedLength, &t.blockSize} {
		v, err := r.readU64le()
		if err != nil {
			return nil, fmt.Errorf("reset table header: %w", ErrResetTableCorrupt)
		}
		*f = v
	}
	if t.blockSize == 0 || t.blockSize%minWindowSize != 0 {
		return nil, fmt.Errorf("reset table block size %d: %w", t.blockSize, ErrResetTableCorrupt)
	}
	if blockCount < 2 {
		return nil, fmt.Errorf("reset table block count %d: %w", blockCount, ErrResetTableCorrupt)
	}

	r.setBytePos(int(tableOffset))
	t.compressed = make([]uint64, blockCount)
	t.uncompressed = make([]uint64, blockCount)
	for i := uint32(0); i < blockCount; i++ {
		c, err := r.readU64le()
		if err != nil {
			return nil, fmt.Errorf("reset table entry %d: %w", i, ErrResetTableCorrupt)
		}
		u, err := r.readU64le()
		if err != nil {
			return nil, fmt.Errorf("reset table entry %d: %w", i, ErrResetTableCorrupt)
		}
		t.compressed[i] = c
		t.uncompressed[i] = u
	}

	if t.compressed[0] != 0 || t.uncompressed[0] != 0 {
		return nil, fmt.Errorf("reset table does not start at zero: %w", ErrResetTableCorrupt)
	}
	for i := 1; i < len(t.compressed); i++ {
		if t.compressed[i] <= t.compressed[i-1] || t.uncompressed[i] <= t.uncompressed[i-1] {
			return nil, fmt.Errorf("reset table offsets not increasing at entry %d: %w", i, ErrResetTableCorrupt)
		}
	}
	last := len(t.compressed) - 1
	if t.compressed[last] != t.compressedLength || t.uncompressed[last] != t.uncompressedLength {
		return nil, fmt.Errorf("reset table final entry does not match totals: %w", ErrResetTableCorrupt)
	}
	return t, nil
}

// appendResetTable serializes t, including the final sentinel entry.
func appendResetTable(dst []byte, t *resetTable) []byte {
	dst = appendU32le(dst, resetTableVersion)
	dst = appendU32le(dst, uint32(len(t.compressed)))
	dst = appendU32le(dst, resetEntryWidth)
	dst = appendU32le(dst, resetHeaderSize)
	dst = appendU64le(dst, t.uncompressedLength)
	dst = appendU64le(dst, t.compressedLength)
	dst = appendU64le(dst, t.blockSize)
	for i := range t.compressed {
		dst = appendU64le(dst, t.compressed[i])
		dst = appendU64le(dst, t.uncompressed[i])
	}
	return dst
}
