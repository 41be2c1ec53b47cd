// archive.go
//
// The archive facade. Open parses the headers, the directory and the reset
// table into an immutable view; List/Stat/Exists are map operations over
// the entry map; Extract reads section-0 spans directly and drives the LZX
// decoder through the reset table for section-1 spans. Lookup policy
// (normalization, case folding) lives here, not in the directory codec.

package chm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FileInfo describes one stored entry.
type FileInfo struct {
	Name       string
	Compressed bool
	Length     uint64
	Section    int
}

// Stats summarizes an archive for Info.
type Stats struct {
	FileCount         int
	TotalUncompressed uint64
	TotalCompressed   uint64
	Ratio             float64
}

// Archive is the parsed, read-only view of a CHM file. It is immutable
// after Open. List, Stat and Exists are safe for concurrent use; Extract
// mutates per-view decoder state, so concurrent extraction needs either
// external serialization or one Archive per goroutine.
type Archive struct {
	src    ByteSource
	closer io.Closer
	opts   Options

	itsf *ITSFHeader
	itsp *ITSPHeader
	lzxc *LZXCHeader
	dir  *directory

	reset *resetTable

	// content0 is the absolute base of section 0; section-1 content lives
	// inside section-0 address space at the Content entry's offset.
	content0        int64
	content1        int64 // -1 when the archive has no compressed section
	compressedLen   uint64
	uncompressedLen uint64

	dec    *lzxDecoder
	icache *intervalCache
	fcache *fileCache
}

// Open parses an archive from src. opts may be nil.
func Open(src ByteSource, opts *Options) (*Archive, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	a := &Archive{src: src, opts: o, content1: -1}
	if err := a.parse(); err != nil {
		return nil, err
	}
	if o.IntervalCacheSize > 0 {
		c, err := newIntervalCache(o.IntervalCacheSize)
		if err != nil {
			return nil, &ArchiveError{Op: "open", Err: err}
		}
		a.icache = c
	}
	if o.FileCacheSize > 0 {
		c, err := newFileCache(o.FileCacheSize)
		if err != nil {
			return nil, &ArchiveError{Op: "open", Err: err}
		}
		a.fcache = c
	}
	return a, nil
}

// OpenFile memory-maps path and opens it. Close unmaps the file.
func OpenFile(path string, opts *Options) (*Archive, error) {
	src, err := openFileSource(path)
	if err != nil {
		return nil, &ArchiveError{Op: "open", Name: path, Err: err}
	}
	a, err := Open(src, opts)
	if err != nil {
		src.Close()
		return nil, err
	}
	a.closer = src
	return a, nil
}

// Close releases the view. The Archive must not be used afterwards.
func (a *Archive) Close() error {
	a.dir = nil
	a.dec = nil
	if a.closer != nil {
		c := a.closer
		a.closer = nil
		return c.Close()
	}
	return nil
}

func (a *Archive) parse() error {
	openErr := func(off int64, err error) error {
		return &ArchiveError{Op: "open", Offset: off, Err: err}
	}

	raw, err := readExact(a.src, 0, itsfHeaderSize)
	if err != nil {
		return openErr(0, err)
	}
	if a.itsf, err = parseITSF(newBitReader(raw)); err != nil {
		return openErr(0, err)
	}

	if raw, err = readExact(a.src, itspHeaderOffset, itspHeaderSize); err != nil {
		return openErr(itspHeaderOffset, err)
	}
	if a.itsp, err = parseITSP(newBitReader(raw)); err != nil {
		return openErr(itspHeaderOffset, err)
	}

	if raw, err = readExact(a.src, lzxcHeaderOffset, lzxcHeaderSize); err != nil {
		return openErr(lzxcHeaderOffset, err)
	}
	if a.lzxc, err = parseLZXC(newBitReader(raw)); err != nil {
		return openErr(lzxcHeaderOffset, err)
	}

	dirOff := int64(a.itsf.DirectoryOffset)
	dirLen := int(a.itsf.DirectoryLength)
	dirData, err := readExact(a.src, dirOff, dirLen)
	if err != nil {
		return openErr(dirOff, err)
	}
	if a.dir, err = parseDirectory(dirData, a.itsp.ChunkSize, a.opts.LegacyDirectory, a.opts.Strict); err != nil {
		return openErr(dirOff, err)
	}
	a.content0 = dirOff + int64(dirLen)

	if err := a.resolveSystemEntries(); err != nil {
		return err
	}
	return a.checkEntryBounds()
}

// resolveSystemEntries locates the compressed section through its named
// directory entries: ControlData re-states the LZXC record, Content places
// the compressed stream inside section-0 address space, and ResetTable
// indexes it.
func (a *Archive) resolveSystemEntries() error {
	if cd, ok := a.dir.get(controlDataName); ok {
		raw, err := a.readSection0(cd)
		if err != nil {
			return &ArchiveError{Op: "open", Name: controlDataName, Err: err}
		}
		h, err := parseLZXC(newBitReader(raw))
		if err != nil {
			return &ArchiveError{Op: "open", Name: controlDataName, Err: err}
		}
		a.lzxc = h
	}

	content, ok := a.dir.get(contentName)
	if !ok {
		return nil
	}
	a.content1 = a.content0 + int64(content.Offset)
	a.compressedLen = content.Length

	rt, ok := a.dir.get(resetTableName)
	if !ok {
		if a.opts.Tolerant {
			return nil
		}
		return &ArchiveError{Op: "open", Name: resetTableName,
			Err: fmt.Errorf("reset table entry missing: %w", ErrResetTableCorrupt)}
	}
	raw, err := a.readSection0(rt)
	if err == nil {
		a.reset, err = parseResetTable(raw)
	}
	if err == nil && a.reset.compressedLength != a.compressedLen {
		err = fmt.Errorf("reset table compressed length %d, content entry %d: %w",
			a.reset.compressedLength, a.compressedLen, ErrResetTableCorrupt)
	}
	if err == nil && a.reset.blockSize != uint64(a.lzxc.ResetInterval) {
		err = fmt.Errorf("reset table block size %d, lzxc interval %d: %w",
			a.reset.blockSize, a.lzxc.ResetInterval, ErrResetTableCorrupt)
	}
	if err != nil {
		if a.opts.Tolerant {
			a.reset = nil
		} else {
			return &ArchiveError{Op: "open", Name: resetTableName, Err: err}
		}
	}

	if a.reset != nil {
		a.uncompressedLen = a.reset.uncompressedLength
	} else {
		// Linear-scan fallback: derive the logical section length from
		// the widest entry span.
		for _, name := range a.dir.names {
			if e := a.dir.entries[name]; e.Section == 1 && e.Offset+e.Length > a.uncompressedLen {
				a.uncompressedLen = e.Offset + e.Length
			}
		}
	}
	return nil
}

// checkEntryBounds enforces that every compressed entry fits the section.
func (a *Archive) checkEntryBounds() error {
	if a.reset == nil {
		return nil
	}
	for _, name := range a.dir.names {
		e := a.dir.entries[name]
		if e.Section == 1 && e.Offset+e.Length > a.reset.uncompressedLength {
			return &ArchiveError{Op: "open", Name: name,
				Err: fmt.Errorf("entry spans %d..%d beyond section end %d: %w",
					e.Offset, e.Offset+e.Length, a.reset.uncompressedLength, ErrDirectoryCorrupt)}
		}
	}
	return nil
}

func (a *Archive) readSection0(e *DirectoryEntry) ([]byte, error) {
	return readExact(a.src, a.content0+int64(e.Offset), int(e.Length))
}

// List returns the stored names of all user entries, ascending by raw byte
// sequence. System entries (the "::" namespace) are omitted.
func (a *Archive) List() []string {
	out := make([]string, 0, len(a.dir.names))
	for _, name := range a.dir.names {
		if !strings.HasPrefix(name, systemPrefix) {
			out = append(out, name)
		}
	}
	return out
}

// Stat returns metadata for name, applying the lookup fallbacks.
func (a *Archive) Stat(name string) (*FileInfo, error) {
	e, err := a.lookup(name)
	if err != nil {
		return nil, &ArchiveError{Op: "stat", Name: name, Err: err}
	}
	return &FileInfo{
		Name:       e.Name,
		Compressed: e.Section == 1,
		Length:     e.Length,
		Section:    int(e.Section),
	}, nil
}

// Exists reports whether name resolves to an entry.
func (a *Archive) Exists(name string) bool {
	_, err := a.lookup(name)
	return err == nil
}

// lookup resolves a name: exact match first, then the normalized path
// (leading slash, backslashes folded, slash runs collapsed), then a
// case-insensitive scan.
func (a *Archive) lookup(name string) (*DirectoryEntry, error) {
	if e, ok := a.dir.get(name); ok {
		return e, nil
	}
	norm := normalizeName(name)
	if e, ok := a.dir.get(norm); ok {
		return e, nil
	}
	lower := strings.ToLower(norm)
	for _, stored := range a.dir.names {
		if strings.ToLower(stored) == lower {
			return a.dir.entries[stored], nil
		}
	}
	return nil, ErrEntryNotFound
}

func normalizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	for strings.Contains(name, "//") {
		name = strings.ReplaceAll(name, "//", "/")
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

// Extract returns the full contents of name.
func (a *Archive) Extract(name string) ([]byte, error) {
	return a.ExtractContext(context.Background(), name)
}

// ExtractContext extracts name, polling ctx between LZX blocks so long
// decodes can be abandoned.
func (a *Archive) ExtractContext(ctx context.Context, name string) ([]byte, error) {
	e, err := a.lookup(name)
	if err != nil {
		return nil, &ArchiveError{Op: "extract", Name: name, Err: err}
	}
	if data, ok := a.fcache.lookup(e.Name); ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	var data []byte
	if e.Section == 1 {
		data, err = a.decodeRange(ctx, e.Offset, e.Length)
	} else {
		data, err = a.readSection0(e)
	}
	if err != nil {
		ae := &ArchiveError{Op: "extract", Name: e.Name, Err: err}
		var inner *ArchiveError
		if errors.As(err, &inner) {
			ae.Offset = inner.Offset
			ae.Err = inner.Err
		}
		var be *lzxBlockError
		if errors.As(ae.Err, &be) {
			ae.Block = &be.Block
			ae.Err = be.Err
		}
		return nil, ae
	}
	if a.fcache != nil {
		clone := make([]byte, len(data))
		copy(clone, data)
		a.fcache.add(e.Name, clone)
	}
	return data, nil
}

// Info reports archive statistics over the user entries.
func (a *Archive) Info() Stats {
	var s Stats
	compressedAny := false
	for _, name := range a.dir.names {
		if strings.HasPrefix(name, systemPrefix) {
			continue
		}
		e := a.dir.entries[name]
		s.FileCount++
		s.TotalUncompressed += e.Length
		if e.Section == 1 {
			compressedAny = true
		} else {
			s.TotalCompressed += e.Length
		}
	}
	if compressedAny {
		s.TotalCompressed += a.compressedLen
	}
	if s.TotalUncompressed > 0 {
		s.Ratio = float64(s.TotalCompressed) / float64(s.TotalUncompressed)
	}
	return s
}

// decodeRange produces the bytes [off, off+length) of the compressed
// section's uncompressed stream.
func (a *Archive) decodeRange(ctx context.Context, off, length uint64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	if a.content1 < 0 {
		return nil, fmt.Errorf("entry in missing compressed section: %w", ErrDirectoryCorrupt)
	}
	if off+length > a.uncompressedLen {
		return nil, fmt.Errorf("range %d..%d beyond section end %d: %w",
			off, off+length, a.uncompressedLen, ErrDirectoryCorrupt)
	}
	if a.dec == nil {
		dec, err := newLzxDecoder(a.lzxc.WindowSize, uint64(a.lzxc.ResetInterval))
		if err != nil {
			return nil, err
		}
		a.dec = dec
	}
	if a.reset != nil {
		return a.decodeWithResetTable(ctx, off, length)
	}
	return a.decodeLinear(ctx, off, length)
}

func (a *Archive) decodeWithResetTable(ctx context.Context, off, length uint64) ([]byte, error) {
	first, err := a.reset.locate(off)
	if err != nil {
		return nil, err
	}
	last, err := a.reset.locate(off + length - 1)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, length)
	for i := first; i <= last; i++ {
		compStart, compEnd, uStart, uEnd := a.reset.span(i)

		plain, ok := a.icache.lookup(i)
		if !ok {
			raw, err := readExact(a.src, a.content1+int64(compStart), int(compEnd-compStart))
			if err != nil {
				return nil, err
			}
			br := newBitReader(raw)
			plain, err = a.dec.decodeInterval(ctx, br, int(uEnd-uStart))
			if err != nil {
				return nil, &ArchiveError{Op: "decode",
					Offset: a.content1 + int64(compStart) + int64(br.bytePos()), Err: err}
			}
			if a.icache != nil {
				clone := make([]byte, len(plain))
				copy(clone, plain)
				a.icache.add(i, clone)
			}
		}

		from := uint64(0)
		if off > uStart {
			from = off - uStart
		}
		to := uEnd - uStart
		if off+length < uEnd {
			to = off + length - uStart
		}
		out = append(out, plain[from:to]...)
	}
	return out, nil
}

// decodeLinear is the no-reset-table fallback: decode every interval from
// the start of the section until the requested range is covered.
func (a *Archive) decodeLinear(ctx context.Context, off, length uint64) ([]byte, error) {
	raw, err := readExact(a.src, a.content1, int(a.compressedLen))
	if err != nil {
		return nil, err
	}
	br := newBitReader(raw)
	interval := uint64(a.lzxc.ResetInterval)

	out := make([]byte, 0, length)
	for uStart := uint64(0); uStart < a.uncompressedLen; uStart += interval {
		uEnd := uStart + interval
		if uEnd > a.uncompressedLen {
			uEnd = a.uncompressedLen
		}
		plain, err := a.dec.decodeInterval(ctx, br, int(uEnd-uStart))
		if err != nil {
			return nil, &ArchiveError{Op: "decode",
				Offset: a.content1 + int64(br.bytePos()), Err: err}
		}
		if off+length <= uStart {
			break
		}
		if off < uEnd {
			from := uint64(0)
			if off > uStart {
				from = off - uStart
			}
			to := uEnd - uStart
			if off+length < uEnd {
				to = off + length - uStart
			}
			out = append(out, plain[from:to]...)
		}
		if off+length <= uEnd {
			break
		}
	}
	if uint64(len(out)) != length {
		return nil, ErrTruncatedBlock
	}
	return out, nil
}
