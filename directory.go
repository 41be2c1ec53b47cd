// directory.go
//
// The CHM directory: a B-tree of fixed-size chunks starting at
// ITSF.directory_offset. PMGL leaves hold the packed entry records; PMGI
// index chunks hold separator keys and are redundant for sequential
// enumeration, so the parser skips them. Entry names are raw UTF-8 byte
// strings, sorted ascending across the leaf chain.
//
// Two entry encodings exist. The canonical form uses ENCINT varints for the
// name length, section id, offset and length. The legacy form (produced by
// some older writers) uses fixed-width fields; it is parse-only and sits
// behind Options.LegacyDirectory.

package chm

import (
	"bytes"
	"fmt"
	"sort"
)

// DirectoryEntry describes one stored file: its exact name, the section it
// lives in (0 uncompressed, 1 LZX) and its span within that section. For
// section 1 the offset is an uncompressed-stream offset, not a file offset.
type DirectoryEntry struct {
	Name    string
	Section uint64
	Offset  uint64
	Length  uint64
}

// directory is the parsed entry map, keyed by exact stored name.
type directory struct {
	entries map[string]*DirectoryEntry
	names   []string // ascending by raw byte sequence
}

func (d *directory) get(name string) (*DirectoryEntry, bool) {
	e, ok := d.entries[name]
	return e, ok
}

func parseDirectory(data []byte, chunkSize uint32, legacy, strict bool) (*directory, error) {
	d := &directory{entries: make(map[string]*DirectoryEntry)}
	if len(data) == 0 {
		return d, nil
	}
	if uint32(len(data))%chunkSize != 0 {
		return nil, fmt.Errorf("directory length %d not a multiple of chunk size %d: %w",
			len(data), chunkSize, ErrDirectoryCorrupt)
	}
	for off := 0; off < len(data); off += int(chunkSize) {
		chunk := data[off : off+int(chunkSize)]
		switch string(chunk[:4]) {
		case sigPMGL:
			if err := d.parsePMGL(chunk, legacy, strict); err != nil {
				return nil, err
			}
		case sigPMGI:
			// Index chunks replicate leaf keys; nothing to collect.
		default:
			return nil, fmt.Errorf("chunk at %d: %w", off,
				&BadSignatureError{Expected: sigPMGL, Got: string(chunk[:4])})
		}
	}
	sort.Strings(d.names)
	return d, nil
}

func (d *directory) parsePMGL(chunk []byte, legacy, strict bool) error {
	r := newBitReader(chunk)
	if err := readSignature(r, sigPMGL); err != nil {
		return err
	}
	freeSpace, err := r.readU32le()
	if err != nil {
		return ErrDirectoryCorrupt
	}
	if int(freeSpace) > len(chunk)-pmglHeaderSize {
		return fmt.Errorf("free space %d exceeds chunk capacity: %w", freeSpace, ErrDirectoryCorrupt)
	}
	// Unknown field, then the prev/next leaf links. The links matter only
	// to writers; parsing walks every chunk in file order.
	if _, err := r.readBytes(12); err != nil {
		return ErrDirectoryCorrupt
	}

	end := len(chunk) - int(freeSpace)
	var prevName []byte
	for r.bytePos() < end {
		var e *DirectoryEntry
		if legacy {
			e, err = parseLegacyEntry(r)
		} else {
			e, err = parseEntry(r)
		}
		if err != nil {
			return err
		}
		if r.bytePos() > end {
			return fmt.Errorf("entry %q overruns chunk payload: %w", e.Name, ErrDirectoryCorrupt)
		}
		if strict && prevName != nil && bytes.Compare(prevName, []byte(e.Name)) >= 0 {
			return fmt.Errorf("%q after %q: %w", e.Name, prevName, ErrDirectoryUnsorted)
		}
		prevName = []byte(e.Name)
		if _, dup := d.entries[e.Name]; !dup {
			d.names = append(d.names, e.Name)
		}
		d.entries[e.Name] = e
	}
	return nil
}

// parseEntry reads one canonical ENCINT-encoded entry record.
func parseEntry(r *bitReader) (*DirectoryEntry, error) {
	nameLen, err := readEncint(r)
	if err != nil {
		return nil, err
	}
	if nameLen == 0 || nameLen > uint64(r.remaining()) {
		return nil, fmt.Errorf("entry name length %d: %w", nameLen, ErrDirectoryCorrupt)
	}
	name, err := r.readBytes(int(nameLen))
	if err != nil {
		return nil, ErrDirectoryCorrupt
	}
	e := &DirectoryEntry{Name: string(name)}
	for _, f := range []*uint64{&e.Section, &e.Offset, &e.Length} {
		v, err := readEncint(r)
		if err != nil {
			return nil, err
		}
		*f = v
	}
	return e, nil
}

// parseLegacyEntry reads one fixed-width entry record: u8 name length, the
// name, u8 compressed flag, u64 offset, u32 length.
func parseLegacyEntry(r *bitReader) (*DirectoryEntry, error) {
	nameLen, err := r.readU8()
	if err != nil {
		return nil, ErrDirectoryCorrupt
	}
	if nameLen == 0 {
		return nil, fmt.Errorf("legacy entry with empty name: %w", ErrDirectoryCorrupt)
	}
	name, err := r.readBytes(int(nameLen))
	if err != nil {
		return nil, ErrDirectoryCorrupt
	}
	flag, err := r.readU8()
	if err != nil {
		return nil, ErrDirectoryCorrupt
	}
	off, err := r.readU64le()
	if err != nil {
		return nil, ErrDirectoryCorrupt
	}
	length, err := r.readU32le()
	if err != nil {
		return nil, ErrDirectoryCorrupt
	}
	e := &DirectoryEntry{Name: string(name), Offset: off, Length: uint64(length)}
	if flag != 0 {
		e.Section = 1
	}
	return e, nil
}

// dirStats summarizes a serialized directory for the ITSP header.
type dirStats struct {
	chunkCount uint32
	firstPMGL  uint32
	lastPMGL   uint32
	depth      uint32
	rootChunk  uint32
}

// serializeDirectory packs entries, which must already be sorted ascending
// by raw name bytes, into PMGL chunks, and emits a PMGI index layer when
// more than one leaf results.
func serializeDirectory(entries []*DirectoryEntry, chunkSize uint32) ([]byte, *dirStats, error) {
	stats := &dirStats{depth: 1, rootChunk: noChunk}
	if len(entries) == 0 {
		return nil, stats, nil
	}

	capacity := int(chunkSize) - pmglHeaderSize
	var payloads [][]byte
	var firstNames []string
	var cur []byte

	for _, e := range entries {
		rec := appendEncint(nil, uint64(len(e.Name)))
		rec = append(rec, e.Name...)
		rec = appendEncint(rec, e.Section)
		rec = appendEncint(rec, e.Offset)
		rec = appendEncint(rec, e.Length)
		if len(rec) > capacity {
			return nil, nil, fmt.Errorf("entry %q exceeds chunk capacity: %w", e.Name, ErrEncoderFailure)
		}
		if len(cur)+len(rec) > capacity {
			payloads = append(payloads, cur)
			cur = nil
		}
		if cur == nil {
			firstNames = append(firstNames, e.Name)
		}
		cur = append(cur, rec...)
	}
	payloads = append(payloads, cur)

	leafCount := len(payloads)
	var out []byte
	for i, p := range payloads {
		prev, next := uint32(noChunk), uint32(noChunk)
		if i > 0 {
			prev = uint32(i - 1)
		}
		if i < leafCount-1 {
			next = uint32(i + 1)
		}
		start := len(out)
		out = append(out, sigPMGL...)
		out = appendU32le(out, chunkSize-pmglHeaderSize-uint32(len(p)))
		out = appendU32le(out, 0)
		out = appendU32le(out, prev)
		out = appendU32le(out, next)
		out = append(out, p...)
		out = appendPadding(out, start, int(chunkSize))
	}

	stats.firstPMGL = 0
	stats.lastPMGL = uint32(leafCount - 1)
	stats.chunkCount = uint32(leafCount)

	if leafCount > 1 {
		blob, count, err := serializePMGI(firstNames, chunkSize)
		if err != nil {
			return nil, nil, err
		}
		stats.rootChunk = uint32(leafCount)
		stats.depth = 2
		stats.chunkCount += count
		out = append(out, blob...)
	}
	return out, stats, nil
}

// serializePMGI packs (separator key, leaf index) records into index chunks.
// One layer is enough for any directory this writer can produce.
func serializePMGI(firstNames []string, chunkSize uint32) ([]byte, uint32, error) {
	capacity := int(chunkSize) - pmgiHeaderSize
	var payloads [][]byte
	var cur []byte
	for i, name := range firstNames {
		rec := appendEncint(nil, uint64(len(name)))
		rec = append(rec, name...)
		rec = appendEncint(rec, uint64(i))
		if len(rec) > capacity {
			return nil, 0, fmt.Errorf("index key %q exceeds chunk capacity: %w", name, ErrEncoderFailure)
		}
		if len(cur)+len(rec) > capacity {
			payloads = append(payloads, cur)
			cur = nil
		}
		cur = append(cur, rec...)
	}
	payloads = append(payloads, cur)

	var out []byte
	for _, p := range payloads {
		start := len(out)
		out = append(out, sigPMGI...)
		out = appendU32le(out, chunkSize-pmgiHeaderSize-uint32(len(p)))
		out = appendU32le(out, 0)
		out = append(out, p...)
		out = appendPadding(out, start, int(chunkSize))
	}
	return out, uint32(len(payloads)), nil
}
