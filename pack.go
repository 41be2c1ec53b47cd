// pack.go
//
// The archive writer. Pack lays the file out exactly as the parser expects:
// the three fixed headers, the directory chunks, section-0 content (user
// uncompressed entries, then the ControlData and ResetTable records), and
// finally the LZX stream, addressed through section 0 by the Content entry.
// Everything is assembled in memory so the header fields that depend on
// later sizes are known before the first byte reaches the sink.

package chm

import (
	"fmt"
	"sort"
	"strings"
)

// PackEntry is one file to store: the entry name (normalized to a leading
// slash) and its contents.
type PackEntry struct {
	Name string
	Data []byte
}

// Pack writes a new archive holding entries to sink. Entries are stored in
// ascending name order; with compression enabled (the default), non-empty
// entries are concatenated into one LZX section with a reset-table entry at
// every reset-interval boundary.
func Pack(entries []PackEntry, sink ByteSink, opts *Options) error {
	var o Options
	if opts != nil {
		o = *opts
	}
	o, err := o.withDefaults()
	if err != nil {
		return &ArchiveError{Op: "pack", Err: err}
	}

	sorted, err := normalizeEntries(entries)
	if err != nil {
		return &ArchiveError{Op: "pack", Err: err}
	}

	// Concatenate the compressed-section plaintext and assign spans.
	var all []*DirectoryEntry
	var uStream []byte
	var section0 []byte
	for _, pe := range sorted {
		e := &DirectoryEntry{Name: pe.Name, Length: uint64(len(pe.Data))}
		if !o.DisableCompression && len(pe.Data) > 0 {
			e.Section = 1
			e.Offset = uint64(len(uStream))
			uStream = append(uStream, pe.Data...)
		} else {
			e.Offset = uint64(len(section0))
			section0 = append(section0, pe.Data...)
		}
		all = append(all, e)
	}

	var cdata []byte
	if len(uStream) > 0 {
		enc, err := newLzxEncoder(o.WindowSize, uint64(o.ResetInterval))
		if err != nil {
			return &ArchiveError{Op: "pack", Err: err}
		}
		var rt *resetTable
		cdata, rt, err = enc.encode(uStream)
		if err != nil {
			return &ArchiveError{Op: "pack", Err: err}
		}

		lzxcCopy := appendLZXC(nil, packLZXC(&o))
		controlOff := uint64(len(section0))
		section0 = append(section0, lzxcCopy...)

		rtBlob := appendResetTable(nil, rt)
		rtOff := uint64(len(section0))
		section0 = append(section0, rtBlob...)

		all = append(all,
			&DirectoryEntry{Name: controlDataName, Offset: controlOff, Length: uint64(len(lzxcCopy))},
			&DirectoryEntry{Name: resetTableName, Offset: rtOff, Length: uint64(len(rtBlob))},
			&DirectoryEntry{Name: contentName, Offset: uint64(len(section0)), Length: uint64(len(cdata))},
		)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	dirBlob, stats, err := serializeDirectory(all, o.ChunkSize)
	if err != nil {
		return &ArchiveError{Op: "pack", Err: err}
	}

	out := appendITSF(nil, &ITSFHeader{
		Version:         itsfVersion,
		HeaderLength:    itsfHeaderSize,
		Timestamp:       o.Timestamp,
		LanguageID:      o.LanguageID,
		DirectoryOffset: headerRegionSize,
		DirectoryLength: uint32(len(dirBlob)),
	})
	out = appendITSP(out, &ITSPHeader{
		Version:      itspVersion,
		HeaderLength: itspHeaderSize,
		ChunkSize:    o.ChunkSize,
		Density:      2,
		Depth:        stats.depth,
		RootChunk:    stats.rootChunk,
		FirstPMGL:    stats.firstPMGL,
		LastPMGL:     stats.lastPMGL,
		ChunkCount:   stats.chunkCount,
		LanguageID:   o.LanguageID,
	})
	out = appendLZXC(out, packLZXC(&o))
	out = append(out, dirBlob...)
	out = append(out, section0...)
	out = append(out, cdata...)

	if _, err := sink.Write(out); err != nil {
		return &ArchiveError{Op: "pack", Err: err}
	}
	return nil
}

func packLZXC(o *Options) *LZXCHeader {
	return &LZXCHeader{
		Version:       lzxcVersion,
		ResetInterval: o.ResetInterval,
		WindowSize:    o.WindowSize,
		CacheSize:     o.WindowSize >> 15,
	}
}

// normalizeEntries validates and sorts the caller's entry list.
func normalizeEntries(entries []PackEntry) ([]PackEntry, error) {
	out := make([]PackEntry, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, pe := range entries {
		if pe.Name == "" {
			return nil, fmt.Errorf("entry with empty name: %w", ErrEncoderFailure)
		}
		if strings.HasPrefix(pe.Name, systemPrefix) {
			return nil, fmt.Errorf("entry %q uses the reserved namespace: %w", pe.Name, ErrEncoderFailure)
		}
		name := normalizeName(pe.Name)
		if seen[name] {
			return nil, fmt.Errorf("duplicate entry %q: %w", name, ErrEncoderFailure)
		}
		seen[name] = true
		out = append(out, PackEntry{Name: name, Data: pe.Data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
